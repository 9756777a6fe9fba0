package scoring

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-care/kestrel/internal/domain"
)

// reductionCompiler compiles and caches CEL reduction expressions.
// Expressions are tenant-authored but pure: the only inputs are the three
// declared variables, so evaluation stays deterministic.
type reductionCompiler struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

func newReductionCompiler() (*reductionCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("raw_score", cel.DoubleType),
		cel.Variable("protective_count", cel.IntType),
		cel.Variable("protective_points", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &reductionCompiler{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile validates a reduction expression and caches the program.
func (c *reductionCompiler) compile(expression string) (cel.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ValidationError{
			Field:  "reduction.expression",
			Detail: issues.Err().Error(),
			Err:    domain.ErrConfigInvalid,
		}
	}

	outputType := ast.OutputType()
	if outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, domain.Invalid("reduction.expression",
			fmt.Sprintf("must return int or double, got %s", outputType))
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, domain.Invalid("reduction.expression", err.Error())
	}

	c.mu.Lock()
	c.programs[expression] = program
	c.mu.Unlock()

	return program, nil
}

// apply computes the reduction amount for a document. The returned amount is
// never negative; clamping the final score at zero is the caller's job.
func (c *reductionCompiler) apply(doc *domain.ConfigDocument, rawScore float64, protectiveCount int, protectivePoints float64) (float64, error) {
	switch doc.Reduction.Kind {
	case "", domain.ReductionNone:
		return 0, nil

	case domain.ReductionPercent:
		if protectiveCount == 0 {
			return 0, nil
		}
		pct := doc.Reduction.Percent * float64(protectiveCount)
		limit := doc.Reduction.MaxPercent
		if limit == 0 {
			limit = 100
		}
		if pct > limit {
			pct = limit
		}
		return rawScore * pct / 100, nil

	case domain.ReductionStepped:
		// Highest matching step wins; steps need not be sorted.
		best := -1
		amount := 0.0
		for _, step := range doc.Reduction.Steps {
			if protectiveCount >= step.MinCount && step.MinCount > best {
				best = step.MinCount
				amount = step.Reduction
			}
		}
		return amount, nil

	case domain.ReductionExpression:
		program, err := c.compile(doc.Reduction.Expression)
		if err != nil {
			return 0, err
		}

		out, _, err := program.Eval(map[string]any{
			"raw_score":         rawScore,
			"protective_count":  protectiveCount,
			"protective_points": protectivePoints,
		})
		if err != nil {
			return 0, domain.Invalid("reduction.expression", fmt.Sprintf("evaluation error: %v", err))
		}

		amount := toFloat(out)
		if amount < 0 {
			amount = 0
		}
		return amount, nil

	default:
		return 0, domain.Invalid("reduction.kind", doc.Reduction.Kind)
	}
}

// toFloat converts a CEL value to a float64 amount.
func toFloat(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}
