package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql/sqlgraph"
	"github.com/syssam/versa/entity"
)

// Decisions a rule returns, possibly wrapped. Allow and Deny end the
// evaluation of a policy; Skip hands the instance to the next rule.
var (
	Allow = errors.New("versa/privacy: allow")
	Deny  = errors.New("versa/privacy: deny")
	Skip  = errors.New("versa/privacy: skip")
)

func decide(decision error, format string, a []any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), decision)
}

// Allowf returns Allow wrapped with a message.
func Allowf(format string, a ...any) error { return decide(Allow, format, a) }

// Denyf returns Deny wrapped with a message.
func Denyf(format string, a ...any) error { return decide(Deny, format, a) }

// Skipf returns Skip wrapped with a message.
func Skipf(format string, a ...any) error { return decide(Skip, format, a) }

type (
	// SaveRule decides whether an instance may be saved.
	SaveRule interface {
		EvalSave(context.Context, *entity.Instance) error
	}

	// SavePolicy combines multiple save rules into a single policy.
	SavePolicy []SaveRule

	// LoadRule decides whether a loaded instance may be returned.
	LoadRule interface {
		EvalLoad(context.Context, *entity.Instance) error
	}

	// LoadPolicy combines multiple load rules into a single policy.
	LoadPolicy []LoadRule

	// Rule is an interface which groups save and load rules.
	Rule interface {
		SaveRule
		LoadRule
	}
)

// SaveRuleFunc type is an adapter which allows the use of ordinary
// functions as save rules.
type SaveRuleFunc func(context.Context, *entity.Instance) error

// EvalSave returns f(ctx, i).
func (f SaveRuleFunc) EvalSave(ctx context.Context, i *entity.Instance) error {
	return f(ctx, i)
}

// LoadRuleFunc type is an adapter which allows the use of ordinary
// functions as load rules.
type LoadRuleFunc func(context.Context, *entity.Instance) error

// EvalLoad returns f(ctx, i).
func (f LoadRuleFunc) EvalLoad(ctx context.Context, i *entity.Instance) error {
	return f(ctx, i)
}

// RuleFunc is an adapter which allows the use of ordinary functions as
// rules for both saves and loads.
type RuleFunc func(context.Context, *entity.Instance) error

// EvalSave returns f(ctx, i).
func (f RuleFunc) EvalSave(ctx context.Context, i *entity.Instance) error { return f(ctx, i) }

// EvalLoad returns f(ctx, i).
func (f RuleFunc) EvalLoad(ctx context.Context, i *entity.Instance) error { return f(ctx, i) }

// AlwaysAllowRule allows every instance.
func AlwaysAllowRule() Rule { return constRule{Allow} }

// AlwaysDenyRule denies every instance.
func AlwaysDenyRule() Rule { return constRule{Deny} }

// ContextRule creates a rule from a context evaluation function. Returning
// nil is equivalent to returning Skip.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ *entity.Instance) error {
		return eval(ctx)
	})
}

// Policy groups save and load policies. It is registered with the store
// as a listener and evaluates every saved and every loaded instance.
type Policy struct {
	Save SavePolicy
	Load LoadPolicy
}

var (
	_ sqlgraph.PreSaveListener  = Policy{}
	_ sqlgraph.PostLoadListener = Policy{}
)

// EvalSave forwards evaluation to the save policy.
func (p Policy) EvalSave(ctx context.Context, i *entity.Instance) error {
	return p.Save.EvalSave(ctx, i)
}

// EvalLoad forwards evaluation to the load policy.
func (p Policy) EvalLoad(ctx context.Context, i *entity.Instance) error {
	return p.Load.EvalLoad(ctx, i)
}

// PreSave evaluates the save policy for every instance of a save batch.
// The first denial aborts the save.
func (p Policy) PreSave(ctx context.Context, _ dialect.ExecQuerier, instances []*entity.Instance) error {
	return eachInstance(ctx, instances, p.EvalSave)
}

// PostLoad evaluates the load policy for every materialized root.
func (p Policy) PostLoad(ctx context.Context, _ dialect.ExecQuerier, instances []*entity.Instance) error {
	return eachInstance(ctx, instances, p.EvalLoad)
}

func eachInstance(ctx context.Context, instances []*entity.Instance, eval func(context.Context, *entity.Instance) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, i := range instances {
		if err := eval(ctx, i); err != nil {
			return fmt.Errorf("%s: %w", i.Key(), err)
		}
	}
	return nil
}

// EvalSave evaluates an instance against a save policy.
func (policies SavePolicy) EvalSave(ctx context.Context, i *entity.Instance) error {
	for _, policy := range policies {
		switch decision := policy.EvalSave(ctx, i); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalLoad evaluates an instance against a load policy.
func (policies LoadPolicy) EvalLoad(ctx context.Context, i *entity.Instance) error {
	for _, policy := range policies {
		switch decision := policy.EvalLoad(ctx, i); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionKey struct{}

// DecisionContext returns a copy of parent that carries a decision for
// every policy evaluated with it. Skip and nil leave parent unchanged.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionKey{}, decision)
}

// DecisionFromContext returns the decision attached by DecisionContext.
// An attached Allow is reported as a nil error.
func DecisionFromContext(ctx context.Context) (error, bool) {
	d, ok := ctx.Value(decisionKey{}).(error)
	if !ok {
		return nil, false
	}
	if errors.Is(d, Allow) {
		return nil, true
	}
	return d, true
}

type constRule struct{ d error }

func (r constRule) EvalSave(context.Context, *entity.Instance) error { return r.d }
func (r constRule) EvalLoad(context.Context, *entity.Instance) error { return r.d }
