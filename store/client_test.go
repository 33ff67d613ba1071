package store_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/entity"
	registry "github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
	"github.com/syssam/versa/store"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry()
	reg.MustRegisterEntityType(registry.EntityType{
		ID:   1,
		Name: "Order",
		Fields: []*field.Descriptor{
			field.String(1, "number").Descriptor(),
			field.Entities(2, "lines").Descriptor(),
			field.Enum(3, "status", "open", "shipped").Descriptor(),
		},
		Projection: "order_view",
	})
	reg.MustRegisterEntityType(registry.EntityType{
		ID:   2,
		Name: "Line",
		Fields: []*field.Descriptor{
			field.String(4, "sku").Descriptor(),
			field.Int(5, "qty").Descriptor(),
		},
	})
	return reg
}

func dsn(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "versa.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
}

func order(number string, lines ...*entity.Instance) *entity.Instance {
	return entity.New(1).
		Set(1, entity.String(number)).
		Set(2, entity.Refs(lines...)).
		Set(3, entity.Enum("open"))
}

func line(sku string, qty int32) *entity.Instance {
	return entity.New(2).Set(4, entity.String(sku)).Set(5, entity.Int(qty))
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	client, err := store.Open("sqlite", dsn(t), testRegistry(),
		store.WithCache(versa.NewMemoryCache()),
		store.WithProjections(true),
		store.WithLivePointer(true),
	)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, dialect.SQLite, client.Dialect())
	assert.Nil(t, client.QueryStats())

	o := order("A-1", line("pen", 2), line("ink", 1))
	require.NoError(t, client.Save(ctx, o))

	out, err := client.LoadByIDs(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	lines, ok := entity.Get[[]*entity.Instance](out[0], 2)
	require.True(t, ok)
	require.Len(t, lines, 2)
	sku, _ := entity.Get[string](lines[1], 4)
	assert.Equal(t, "ink", sku)
	status, _ := entity.Get[string](out[0], 3)
	assert.Equal(t, "open", status)

	all, err := client.LoadAllOfType(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pinned, err := client.LoadByKeys(ctx, o.Key())
	require.NoError(t, err)
	require.Len(t, pinned, 1)

	res, err := client.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, res.HasErrors(), res.String())

	require.NoError(t, client.Delete(ctx, o.ID))
	out, err = client.LoadByIDs(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestClient_Debug(t *testing.T) {
	ctx := context.Background()
	var buf syncBuffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := store.Open("sqlite", dsn(t), testRegistry(), store.WithLogger(log))
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.EnsureSchema(ctx))

	require.NoError(t, client.Debug().Save(ctx, order("A-2")))
	assert.Contains(t, buf.String(), "query=\"INSERT INTO `versa_overview`")
}

func TestClient_SlowQuery(t *testing.T) {
	ctx := context.Background()
	client, err := store.Open("sqlite", dsn(t), testRegistry(),
		store.WithSlowQuery(time.Hour),
		store.WithPool(sql.WithMaxOpenConns(4), sql.WithMaxIdleConns(2)),
	)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Save(ctx, order("A-3", line("pen", 1))))
	stats := client.QueryStats().Stats()
	assert.Positive(t, stats.TotalExecs)
	assert.Zero(t, stats.SlowQueries)
	assert.Zero(t, stats.Errors)
	assert.Positive(t, stats.Commits)
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	_, err := store.Open("db2", "x", testRegistry())
	assert.Error(t, err)
}
