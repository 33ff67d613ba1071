package privacy_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/versa"
	"github.com/syssam/versa/entity"
	"github.com/syssam/versa/privacy"
	registry "github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
	"github.com/syssam/versa/store"
)

const (
	docType     int32 = 1
	secretType  int32 = 2
	ownerField  int32 = 1
	tenantField int32 = 2
)

func doc(owner, tenant string) *entity.Instance {
	return entity.New(docType).
		Set(ownerField, entity.String(owner)).
		Set(tenantField, entity.String(tenant))
}

func viewer(id, tenant string, roles ...string) context.Context {
	return privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: id, TenantID: tenant, Roles: roles})
}

func TestSavePolicy(t *testing.T) {
	policy := privacy.SavePolicy{
		privacy.DenyIfNoViewer(),
		privacy.TenantRule(tenantField),
		privacy.HasRole("admin"),
		privacy.IsOwner(ownerField),
		privacy.AlwaysDenyRule(),
	}
	tests := []struct {
		name    string
		ctx     context.Context
		inst    *entity.Instance
		allowed bool
	}{
		{"no viewer", context.Background(), doc("u1", "t1"), false},
		{"owner", viewer("u1", "t1"), doc("u1", "t1"), true},
		{"other user", viewer("u2", "t1"), doc("u1", "t1"), false},
		{"admin", viewer("u2", "t1", "admin"), doc("u1", "t1"), true},
		{"admin of other tenant", viewer("u2", "t2", "admin"), doc("u1", "t1"), false},
		{"owner without tenant", viewer("u1", ""), doc("u1", "t9"), true},
		{"decision context", privacy.DecisionContext(context.Background(), privacy.Allow), doc("u1", "t1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := privacy.Policy{Save: policy}.PreSave(tt.ctx, nil, []*entity.Instance{tt.inst})
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, privacy.Deny)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	p := privacy.Policy{Load: privacy.LoadPolicy{
		privacy.OnEntityTypes(privacy.HasAnyRole("auditor", "admin"), secretType),
		privacy.OnEntityTypes(privacy.AlwaysDenyRule(), secretType),
	}}
	secret := entity.New(secretType)

	assert.NoError(t, p.PostLoad(context.Background(), nil, []*entity.Instance{doc("u1", "t1")}))
	assert.ErrorIs(t, p.PostLoad(context.Background(), nil, []*entity.Instance{secret}), privacy.Deny)
	assert.NoError(t, p.PostLoad(viewer("u1", "", "auditor"), nil, []*entity.Instance{secret}))

	denied := privacy.DecisionContext(viewer("u1", "", "auditor"), privacy.Denyf("maintenance"))
	assert.ErrorIs(t, p.PostLoad(denied, nil, nil), privacy.Deny)
}

func TestDecisions(t *testing.T) {
	assert.ErrorIs(t, privacy.Allowf("ok %d", 1), privacy.Allow)
	assert.ErrorIs(t, privacy.Skipf("next"), privacy.Skip)
	assert.Equal(t, "nope: versa/privacy: deny", privacy.Denyf("nope").Error())

	ctx := privacy.DecisionContext(context.Background(), privacy.Skip)
	_, ok := privacy.DecisionFromContext(ctx)
	assert.False(t, ok)

	ctx = privacy.DecisionContext(context.Background(), privacy.Allowf("system"))
	decision, ok := privacy.DecisionFromContext(ctx)
	assert.True(t, ok)
	assert.NoError(t, decision)

	err := privacy.SavePolicy{privacy.DenyEntityTypesRule(secretType)}.EvalSave(context.Background(), entity.New(secretType))
	assert.ErrorIs(t, err, privacy.Deny)
	assert.NoError(t, privacy.SavePolicy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()}.EvalSave(context.Background(), doc("", "")))
}

func TestPolicy_Store(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegisterEntityType(registry.EntityType{
		ID:   docType,
		Name: "Doc",
		Fields: []*field.Descriptor{
			field.String(ownerField, "owner").Descriptor(),
			field.String(tenantField, "tenant").Descriptor(),
		},
	})
	dsn := "file:" + filepath.Join(t.TempDir(), "versa.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	policy := privacy.Policy{
		Save: privacy.SavePolicy{privacy.DenyIfNoViewer(), privacy.IsOwner(ownerField), privacy.AlwaysDenyRule()},
		Load: privacy.LoadPolicy{privacy.DenyIfNoViewer()},
	}
	client, err := store.Open("sqlite", dsn, reg, store.WithListeners(policy))
	require.NoError(t, err)
	defer client.Close()

	d := doc("u1", "t1")
	err = client.Save(viewer("u2", "t1"), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, privacy.Deny))
	assert.True(t, versa.IsSaveError(err))

	require.NoError(t, client.Save(viewer("u1", "t1"), d))

	_, err = client.LoadByIDs(context.Background(), d.ID)
	assert.ErrorIs(t, err, privacy.Deny)
	out, err := client.LoadByIDs(viewer("u2", "t1"), d.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
}
