package scoring

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/opensource-care/kestrel/internal/domain"
)

func testConfig() domain.MatrixConfig {
	return domain.MatrixConfig{
		ID:       "cfg-001",
		TenantID: "tenant-001",
		Version:  "1.0.0",
		Document: domain.ConfigDocument{
			CategoryWeights: map[string]float64{
				"BODY": 3,
				"PSY":  2,
			},
			Thresholds: domain.Thresholds{Green: 0, Yellow: 5, Red: 10},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestEvaluateScenario(t *testing.T) {
	// Indicators A(cat=BODY, sev=2), B(cat=PSY, sev=1); weights BODY=3,
	// PSY=2. Raw = 2*3 + 1*2 = 8, which lands in the YELLOW band.
	engine := newTestEngine(t)

	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 2},
		{IndicatorID: "B", Category: "PSY", Severity: 1},
	}

	result, err := engine.Evaluate(tags, testConfig())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.RawScore != 8 {
		t.Errorf("expected raw score 8, got %v", result.RawScore)
	}
	if result.FinalScore != 8 {
		t.Errorf("expected final score 8, got %v", result.FinalScore)
	}
	if result.TrafficLight != domain.LightYellow {
		t.Errorf("expected YELLOW, got %s", result.TrafficLight)
	}
	if len(result.Contributions) != 2 {
		t.Fatalf("expected 2 contributions, got %d", len(result.Contributions))
	}
	if len(result.Dimensions) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(result.Dimensions))
	}
	if result.Dimensions[0].Dimension != "BODY" || result.Dimensions[0].Subtotal != 6 {
		t.Errorf("unexpected BODY subtotal: %+v", result.Dimensions[0])
	}
	if result.Dimensions[1].Dimension != "PSY" || result.Dimensions[1].Subtotal != 2 {
		t.Errorf("unexpected PSY subtotal: %+v", result.Dimensions[1])
	}
}

func TestEvaluateZeroTags(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Evaluate(nil, testConfig())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.RawScore != 0 || result.FinalScore != 0 {
		t.Errorf("expected zero scores, got raw=%v final=%v", result.RawScore, result.FinalScore)
	}
	if result.TrafficLight != domain.LightGreen {
		t.Errorf("expected GREEN, got %s", result.TrafficLight)
	}
	if len(result.Contributions) != 0 {
		t.Errorf("expected empty contributions, got %d", len(result.Contributions))
	}
}

func TestHardHitForcesRed(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.HardHits = []string{"C"}

	// Score alone stays YELLOW; the hard hit must still force RED.
	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 2},
		{IndicatorID: "B", Category: "PSY", Severity: 1},
		{IndicatorID: "C", Category: "PSY", Severity: 0},
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.TrafficLight != domain.LightRed {
		t.Errorf("expected RED, got %s", result.TrafficLight)
	}
	if len(result.HardHits) != 1 || result.HardHits[0].IndicatorID != "C" {
		t.Errorf("expected hard hit C, got %+v", result.HardHits)
	}
	// Numeric score is still computed and reported for transparency.
	if result.RawScore != 8 {
		t.Errorf("expected raw score 8, got %v", result.RawScore)
	}
}

func TestHardHitInGreenBand(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.HardHits = []string{"X"}

	tags := []domain.ResolvedTag{
		{IndicatorID: "X", Category: "PSY", Severity: 1},
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.FinalScore >= cfg.Document.Thresholds.Yellow {
		t.Fatalf("test setup wrong: score %v not in GREEN band", result.FinalScore)
	}
	if result.TrafficLight != domain.LightRed {
		t.Errorf("expected RED despite GREEN-band score, got %s", result.TrafficLight)
	}
}

func TestThresholdBoundaries(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.IndicatorWeights = map[string]float64{"W": 1}

	cases := []struct {
		severity int
		weight   float64
		want     domain.TrafficLight
	}{
		{1, 10, domain.LightRed},     // exactly red threshold
		{1, 5, domain.LightYellow},   // exactly yellow threshold
		{1, 4.99, domain.LightGreen}, // just below yellow
	}

	for _, tc := range cases {
		cfg.Document.IndicatorWeights["W"] = tc.weight
		tags := []domain.ResolvedTag{{IndicatorID: "W", Severity: tc.severity}}

		result, err := engine.Evaluate(tags, cfg)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if result.TrafficLight != tc.want {
			t.Errorf("score %v: expected %s, got %s", result.FinalScore, tc.want, result.TrafficLight)
		}
	}
}

func TestIndicatorWeightBeatsCategoryWeight(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.IndicatorWeights = map[string]float64{"A": 7}

	tags := []domain.ResolvedTag{{IndicatorID: "A", Category: "BODY", Severity: 1}}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.RawScore != 7 {
		t.Errorf("expected indicator weight 7 to win over category weight 3, got %v", result.RawScore)
	}
}

func TestUnknownCategoryFallsIntoOther(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.DefaultWeight = 0.5

	tags := []domain.ResolvedTag{
		{IndicatorID: "Z", Category: "UNDECLARED", Severity: 2},
		{IndicatorID: "Q", Severity: 1}, // no category at all
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(result.Dimensions) != 1 || result.Dimensions[0].Dimension != domain.DimensionOther {
		t.Fatalf("expected single OTHER dimension, got %+v", result.Dimensions)
	}
	if result.RawScore != 1.5 {
		t.Errorf("expected raw score 1.5 at default weight, got %v", result.RawScore)
	}
}

func TestPercentReductionCapped(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.ProtectiveIndicators = []string{"P1", "P2", "P3"}
	cfg.Document.Reduction = domain.ReductionPolicy{
		Kind:       domain.ReductionPercent,
		Percent:    20,
		MaxPercent: 50,
	}

	// Raw = 2*3 + 3 * (1*2) = 12; three protective tags would be 60% but
	// the cap holds it at 50% -> reduction 6, final 6.
	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 2},
		{IndicatorID: "P1", Category: "PSY", Severity: 1},
		{IndicatorID: "P2", Category: "PSY", Severity: 1},
		{IndicatorID: "P3", Category: "PSY", Severity: 1},
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.RawScore != 12 {
		t.Fatalf("expected raw 12, got %v", result.RawScore)
	}
	if result.ProtectiveReduction != 6 {
		t.Errorf("expected reduction 6, got %v", result.ProtectiveReduction)
	}
	if result.FinalScore != 6 {
		t.Errorf("expected final 6, got %v", result.FinalScore)
	}
	if result.Reduction.ProtectiveCount != 3 {
		t.Errorf("expected protective count 3, got %d", result.Reduction.ProtectiveCount)
	}
}

func TestSteppedReduction(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.ProtectiveIndicators = []string{"P1", "P2"}
	cfg.Document.Reduction = domain.ReductionPolicy{
		Kind: domain.ReductionStepped,
		Steps: []domain.ReductionStep{
			{MinCount: 1, Reduction: 1},
			{MinCount: 2, Reduction: 3},
			{MinCount: 4, Reduction: 5},
		},
	}

	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 2},
		{IndicatorID: "P1", Category: "PSY", Severity: 1},
		{IndicatorID: "P2", Category: "PSY", Severity: 1},
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// Two protective tags -> the MinCount=2 step applies.
	if result.ProtectiveReduction != 3 {
		t.Errorf("expected reduction 3, got %v", result.ProtectiveReduction)
	}
}

func TestReductionNeverDrivesScoreBelowZero(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.ProtectiveIndicators = []string{"P1"}
	cfg.Document.Reduction = domain.ReductionPolicy{
		Kind:  domain.ReductionStepped,
		Steps: []domain.ReductionStep{{MinCount: 1, Reduction: 1000}},
	}

	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 1},
		{IndicatorID: "P1", Category: "PSY", Severity: 1},
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.FinalScore != 0 {
		t.Errorf("expected final score clamped to 0, got %v", result.FinalScore)
	}
	// The full reduction amount stays visible in the rationale.
	if result.ProtectiveReduction != 1000 {
		t.Errorf("expected recorded reduction 1000, got %v", result.ProtectiveReduction)
	}
}

func TestExpressionReduction(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.ProtectiveIndicators = []string{"P1"}
	cfg.Document.Reduction = domain.ReductionPolicy{
		Kind:       domain.ReductionExpression,
		Expression: "raw_score * 0.1 * double(protective_count)",
	}

	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 2}, // 6
		{IndicatorID: "P1", Category: "PSY", Severity: 2}, // 4
	}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.RawScore != 10 {
		t.Fatalf("expected raw 10, got %v", result.RawScore)
	}
	if result.ProtectiveReduction != 1 {
		t.Errorf("expected reduction 1, got %v", result.ProtectiveReduction)
	}
	if result.FinalScore != 9 {
		t.Errorf("expected final 9, got %v", result.FinalScore)
	}
}

func TestInvalidExpressionRejected(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.Reduction = domain.ReductionPolicy{
		Kind:       domain.ReductionExpression,
		Expression: "this is not CEL !!!",
	}

	_, err := engine.Evaluate(nil, cfg)
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestRoundingPrecision(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.IndicatorWeights = map[string]float64{"A": 1.005}
	cfg.Document.Precision = 2

	tags := []domain.ResolvedTag{{IndicatorID: "A", Severity: 1}}

	result, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.FinalScore != 1.0 && result.FinalScore != 1.01 {
		t.Errorf("expected final score rounded to 2 decimals, got %v", result.FinalScore)
	}
}

func TestConfigInvalid(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("NonMonotonicThresholds", func(t *testing.T) {
		cfg := testConfig()
		cfg.Document.Thresholds = domain.Thresholds{Green: 5, Yellow: 5, Red: 10}

		_, err := engine.Evaluate(nil, cfg)
		if !errors.Is(err, domain.ErrConfigInvalid) {
			t.Errorf("expected ErrConfigInvalid, got %v", err)
		}
	})

	t.Run("EmptyWeights", func(t *testing.T) {
		cfg := testConfig()
		cfg.Document.CategoryWeights = nil

		_, err := engine.Evaluate(nil, cfg)
		if !errors.Is(err, domain.ErrConfigInvalid) {
			t.Errorf("expected ErrConfigInvalid, got %v", err)
		}
	})

	t.Run("UnknownReductionKind", func(t *testing.T) {
		cfg := testConfig()
		cfg.Document.Reduction.Kind = "magic"

		_, err := engine.Evaluate(nil, cfg)
		if !errors.Is(err, domain.ErrConfigInvalid) {
			t.Errorf("expected ErrConfigInvalid, got %v", err)
		}
	})
}

func TestEvaluateDeterministic(t *testing.T) {
	engine := newTestEngine(t)

	cfg := testConfig()
	cfg.Document.HardHits = []string{"H"}
	cfg.Document.ProtectiveIndicators = []string{"P1"}
	cfg.Document.Reduction = domain.ReductionPolicy{Kind: domain.ReductionPercent, Percent: 10}
	cfg.Document.DefaultWeight = 0.25

	tags := []domain.ResolvedTag{
		{IndicatorID: "A", Category: "BODY", Severity: 2},
		{IndicatorID: "B", Category: "PSY", Severity: 1},
		{IndicatorID: "H", Category: "BODY", Severity: 3},
		{IndicatorID: "P1", Category: "MISC", Severity: 1},
	}

	first, err := engine.Evaluate(tags, cfg)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	firstJSON, _ := json.Marshal(first)

	for i := 0; i < 50; i++ {
		again, err := engine.Evaluate(tags, cfg)
		if err != nil {
			t.Fatalf("Evaluate failed on run %d: %v", i, err)
		}
		againJSON, _ := json.Marshal(again)
		if string(firstJSON) != string(againJSON) {
			t.Fatalf("run %d differs:\n%s\n%s", i, firstJSON, againJSON)
		}
	}
}
