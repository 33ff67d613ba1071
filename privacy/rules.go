package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/versa/entity"
)

// Viewer is the principal a save or load runs for. Attach one to the
// context with WithViewer.
type Viewer interface {
	ViewerID() string
	ViewerRoles() []string
	// ViewerTenant is empty when the store is not partitioned by tenant.
	ViewerTenant() string
}

type viewerKey struct{}

// WithViewer returns a copy of ctx carrying v.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer of ctx, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer with fixed values.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) ViewerID() string      { return v.UserID }
func (v *SimpleViewer) ViewerRoles() []string { return v.Roles }
func (v *SimpleViewer) ViewerTenant() string  { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context. It is typically the first rule of a policy.
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the role.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of
// the roles.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range viewer.ViewerRoles() {
			if slices.Contains(roles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows access if the value of the owner
// field equals the viewer's ID.
//
//	privacy.SavePolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner(ownerField),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(fieldID int32) Rule {
	return RuleFunc(func(ctx context.Context, i *entity.Instance) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if owner, ok := fieldString(i, fieldID); ok && owner == viewer.ViewerID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule returns a rule that denies access to instances whose tenant
// field differs from the viewer's tenant. Instances without the field and
// viewers without a tenant are skipped.
func TenantRule(fieldID int32) Rule {
	return RuleFunc(func(ctx context.Context, i *entity.Instance) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.ViewerTenant() == "" {
			return Skip
		}
		tenant, ok := fieldString(i, fieldID)
		if !ok {
			return Skip
		}
		if tenant != viewer.ViewerTenant() {
			return Denyf("tenant mismatch")
		}
		return Skip
	})
}

// OnEntityTypes evaluates the rule only for instances of the given entity
// types and skips all others.
func OnEntityTypes(rule Rule, entityIDs ...int32) Rule {
	return onEntityTypes{rule: rule, ids: entityIDs}
}

type onEntityTypes struct {
	rule Rule
	ids  []int32
}

func (r onEntityTypes) EvalSave(ctx context.Context, i *entity.Instance) error {
	if !slices.Contains(r.ids, i.EntityID) {
		return Skip
	}
	return r.rule.EvalSave(ctx, i)
}

func (r onEntityTypes) EvalLoad(ctx context.Context, i *entity.Instance) error {
	if !slices.Contains(r.ids, i.EntityID) {
		return Skip
	}
	return r.rule.EvalLoad(ctx, i)
}

// DenyEntityTypesRule returns a rule denying access to instances of the
// given entity types.
func DenyEntityTypesRule(entityIDs ...int32) Rule {
	return RuleFunc(func(_ context.Context, i *entity.Instance) error {
		if slices.Contains(entityIDs, i.EntityID) {
			return Denyf("entity type %d is not allowed", i.EntityID)
		}
		return Skip
	})
}

func fieldString(i *entity.Instance, fieldID int32) (string, bool) {
	v, ok := i.Value(fieldID)
	if !ok || v.IsNull() {
		return "", false
	}
	if s, ok := v.Interface().(string); ok {
		return s, true
	}
	return fmt.Sprint(v.Interface()), true
}
