package sqlgraph_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/dialect/sql/sqlgraph"
	"github.com/syssam/versa/dialect/sql/syntax"
	"github.com/syssam/versa/entity"
	registry "github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
)

const (
	animalType int32 = iota + 1
	dogType
	customerType
	addressType
)

const (
	fAnimalName int32 = 1
	fBreed      int32 = 2
	fTricks     int32 = 3

	fName    int32 = 10
	fAge     int32 = 11
	fActive  int32 = 12
	fBalance int32 = 13
	fRef     int32 = 14
	fAvatar  int32 = 15
	fBorn    int32 = 16
	fSeen    int32 = 17
	fWait    int32 = 18
	fScores  int32 = 19
	fAddress int32 = 20
	fPets    int32 = 21

	fStreet int32 = 30
	fCity   int32 = 31
)

func newRegistry(t *testing.T, withAddress bool) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	reg.MustRegisterEntityType(registry.EntityType{
		ID:     animalType,
		Name:   "Animal",
		Fields: []*field.Descriptor{field.String(fAnimalName, "name").Descriptor()},
	})
	reg.MustRegisterEntityType(registry.EntityType{
		ID:      dogType,
		Name:    "Dog",
		Parents: []int32{animalType},
		Fields: []*field.Descriptor{
			field.Enum(fBreed, "breed", "beagle", "collie").Descriptor(),
			field.Collection(field.TypeString, fTricks, "tricks").Descriptor(),
		},
	})
	reg.MustRegisterEntityType(registry.EntityType{
		ID:   customerType,
		Name: "Customer",
		Fields: []*field.Descriptor{
			field.String(fName, "name").Size(64).Descriptor(),
			field.Int(fAge, "age").Descriptor(),
			field.Bool(fActive, "active").Descriptor(),
			field.Double(fBalance, "balance").Descriptor(),
			field.UUID(fRef, "ref").Descriptor(),
			field.Blob(fAvatar, "avatar").Descriptor(),
			field.Date(fBorn, "born").Descriptor(),
			field.DateTime(fSeen, "seen").Descriptor(),
			field.Duration(fWait, "wait").Descriptor(),
			field.Collection(field.TypeInt, fScores, "scores").Descriptor(),
			field.Entity(fAddress, "address").Descriptor(),
			field.Entities(fPets, "pets").Descriptor(),
		},
		Projection: "customer_view",
	})
	if withAddress {
		reg.MustRegisterEntityType(registry.EntityType{
			ID:   addressType,
			Name: "Address",
			Fields: []*field.Descriptor{
				field.String(fStreet, "street").Descriptor(),
				field.String(fCity, "city").Descriptor(),
			},
		})
	}
	return reg
}

func openSQLite(t *testing.T) *sql.Driver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "versa.db")
	drv, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)")
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	return drv
}

func newGraph(t *testing.T, drv *sql.Driver, reg *registry.Registry, opts ...sqlgraph.Option) *sqlgraph.Graph {
	t.Helper()
	m := schema.NewManager(drv, syntax.SQLite{}, reg, schema.WithProjections(true))
	return sqlgraph.NewGraph(drv, m, reg, opts...)
}

func count(t *testing.T, q dialect.ExecQuerier, stmt string, args ...any) int {
	t.Helper()
	rows := &sql.Rows{}
	require.NoError(t, q.Query(context.Background(), stmt, args, rows))
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	return n
}

func dog(name, breed string, tricks ...string) *entity.Instance {
	d := entity.New(dogType).
		Set(fAnimalName, entity.String(name)).
		Set(fBreed, entity.Enum(breed))
	if len(tricks) > 0 {
		d.Set(fTricks, entity.MustValue(field.TypeStringCollection, tricks))
	}
	return d
}

func TestGraph_RoundTrip(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true))

	var (
		ref  = uuid.New()
		born = time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
		seen = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	)
	addr := entity.New(addressType).Set(fStreet, entity.String("1 Main St")).Set(fCity, entity.String("Springfield"))
	rex, fido := dog("rex", "beagle", "sit", "roll"), dog("fido", "collie")
	c := entity.New(customerType).
		Set(fName, entity.String("Ada")).
		Set(fActive, entity.Bool(true)).
		Set(fBalance, entity.Double(12.5)).
		Set(fRef, entity.UUID(ref)).
		Set(fAvatar, entity.Blob([]byte{1, 2, 3})).
		Set(fBorn, entity.Date(born)).
		Set(fSeen, entity.DateTime(seen)).
		Set(fWait, entity.Duration(90*time.Second)).
		Set(fScores, entity.MustValue(field.TypeIntCollection, []int32{3, 1, 2})).
		Set(fAddress, entity.Ref(addr)).
		Set(fPets, entity.Refs(rex, fido))
	require.NoError(t, g.Save(ctx, c))
	require.NotEmpty(t, c.ID)
	require.NotEmpty(t, addr.ID)

	out, err := g.LoadByIDs(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, c.Key(), got.Key())
	assert.Equal(t, customerType, got.EntityID)
	assert.True(t, got.Live)
	assert.False(t, got.CreatedAt.IsZero())

	name, _ := entity.Get[string](got, fName)
	assert.Equal(t, "Ada", name)
	_, ok := got.Value(fAge)
	assert.False(t, ok, "absent fields stay absent")
	active, _ := entity.Get[bool](got, fActive)
	assert.True(t, active)
	balance, _ := entity.Get[float64](got, fBalance)
	assert.Equal(t, 12.5, balance)
	gotRef, _ := entity.Get[uuid.UUID](got, fRef)
	assert.Equal(t, ref, gotRef)
	avatar, _ := entity.Get[[]byte](got, fAvatar)
	assert.Equal(t, []byte{1, 2, 3}, avatar)
	gotBorn, _ := entity.Get[time.Time](got, fBorn)
	assert.True(t, born.Equal(gotBorn), gotBorn)
	gotSeen, _ := entity.Get[time.Time](got, fSeen)
	assert.True(t, seen.Equal(gotSeen), gotSeen)
	wait, _ := entity.Get[time.Duration](got, fWait)
	assert.Equal(t, 90*time.Second, wait)
	scores, _ := entity.Get[[]int32](got, fScores)
	assert.Equal(t, []int32{3, 1, 2}, scores)

	gotAddr, ok := entity.Get[*entity.Instance](got, fAddress)
	require.True(t, ok)
	assert.Equal(t, addr.Key(), gotAddr.Key())
	street, _ := entity.Get[string](gotAddr, fStreet)
	assert.Equal(t, "1 Main St", street)

	pets, ok := entity.Get[[]*entity.Instance](got, fPets)
	require.True(t, ok)
	require.Len(t, pets, 2)
	assert.Equal(t, dogType, pets[0].EntityID)
	petName, _ := entity.Get[string](pets[0], fAnimalName)
	assert.Equal(t, "rex", petName)
	breed, _ := entity.Get[string](pets[1], fBreed)
	assert.Equal(t, "collie", breed)
	tricks, _ := entity.Get[[]string](pets[0], fTricks)
	assert.Equal(t, []string{"sit", "roll"}, tricks)

	t.Run("Idempotent", func(t *testing.T) {
		before := count(t, drv, "SELECT COUNT(*) FROM versa_binding")
		assert.Equal(t, 3, before)
		require.NoError(t, g.Save(ctx, c))
		assert.Equal(t, before, count(t, drv, "SELECT COUNT(*) FROM versa_binding"))
		assert.Equal(t, 4, count(t, drv, "SELECT COUNT(*) FROM versa_overview"))
	})

	t.Run("Projection", func(t *testing.T) {
		rows := &sql.Rows{}
		require.NoError(t, drv.Query(ctx, "SELECT name, age, active FROM customer_view WHERE id = ?", []any{c.ID}, rows))
		defer rows.Close()
		require.True(t, rows.Next())
		var (
			name   string
			age    sql.NullInt64
			active bool
		)
		require.NoError(t, rows.Scan(&name, &age, &active))
		assert.Equal(t, "Ada", name)
		assert.False(t, age.Valid)
		assert.True(t, active)
	})
}

// samples holds one value of every value type. Entity types are covered by
// TestGraph_RoundTrip.
var samples = func() map[field.Type]any {
	var (
		day   = time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
		at    = time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
		zoned = time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.FixedZone("", 5*3600+30*60))
		id    = uuid.MustParse("6f1c2d4e-8a7b-4c3d-9e0f-112233445566")
		clock = entity.TimeOfDay{Hour: 13, Minute: 45, Second: 30, Nanosecond: 500}
		per   = entity.Period{Years: 1, Months: 2, Days: 3}
		ym    = entity.YearMonth{Year: 2024, Month: time.March}
		md    = entity.MonthDay{Month: time.February, Day: 29}
	)
	return map[field.Type]any{
		field.TypeBool:          true,
		field.TypeShort:         int16(-7),
		field.TypeInt:           int32(42),
		field.TypeLong:          int64(1) << 40,
		field.TypeFloat:         float32(1.5),
		field.TypeDouble:        2.25,
		field.TypeString:        "héllo",
		field.TypeUUID:          id,
		field.TypeBlob:          []byte{0, 1, 2},
		field.TypeDate:          day,
		field.TypeDateTime:      at,
		field.TypeZonedDateTime: zoned,
		field.TypeTime:          clock,
		field.TypeDuration:      90 * time.Minute,
		field.TypePeriod:        per,
		field.TypeYearMonth:     ym,
		field.TypeMonthDay:      md,
		field.TypeEnum:          "green",
		field.TypeEnumString:    "green",

		field.TypeBoolCollection:          []bool{true, false},
		field.TypeShortCollection:         []int16{-1, 1},
		field.TypeIntCollection:           []int32{3, 1, 2},
		field.TypeLongCollection:          []int64{1 << 40, -5},
		field.TypeFloatCollection:         []float32{0.5, 1.5},
		field.TypeDoubleCollection:        []float64{2.25, -1},
		field.TypeStringCollection:        []string{"a", "", "c"},
		field.TypeUUIDCollection:          []uuid.UUID{id, uuid.Nil},
		field.TypeDateCollection:          []time.Time{day, day.AddDate(0, 1, 0)},
		field.TypeDateTimeCollection:      []time.Time{at, at.Add(time.Hour)},
		field.TypeZonedDateTimeCollection: []time.Time{zoned, zoned.In(time.FixedZone("", -8*3600))},
		field.TypeTimeCollection:          []entity.TimeOfDay{clock, {Hour: 1}},
		field.TypeDurationCollection:      []time.Duration{time.Second, 0},
		field.TypePeriodCollection:        []entity.Period{per, {Days: 14}},
		field.TypeYearMonthCollection:     []entity.YearMonth{ym, {Year: 1999, Month: time.December}},
		field.TypeMonthDayCollection:      []entity.MonthDay{md, {Month: time.January, Day: 1}},
		field.TypeEnumCollection:          []string{"blue", "red", "blue"},
		field.TypeEnumStringCollection:    []string{"red", "green"},
	}
}()

func assertSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
	_, wantOffset := want.Zone()
	_, gotOffset := got.Zone()
	assert.Equal(t, wantOffset, gotOffset, "zone offset of %s", got)
}

func TestGraph_RoundTripTypes(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)

	const sampleType int32 = 50
	var fields []*field.Descriptor
	for _, typ := range field.Types() {
		if typ.IsEntity() {
			continue
		}
		b := field.New(typ, 100+int32(typ), typ.String())
		if typ.IsEnum() {
			b.Values("red", "green", "blue")
		}
		fields = append(fields, b.Descriptor())
	}
	reg := registry.NewRegistry()
	reg.MustRegisterEntityType(registry.EntityType{ID: sampleType, Name: "Sample", Fields: fields})
	g := newGraph(t, drv, reg)

	in := entity.NewWithKey(sampleType, "s1", 1)
	for _, d := range fields {
		v, ok := samples[d.Type]
		require.True(t, ok, "no sample of type %s", d.Type)
		in.Set(d.ID, entity.MustValue(d.Type, v))
	}
	require.NoError(t, g.Save(ctx, in))

	out, err := g.LoadByKeys(ctx, in.Key())
	require.NoError(t, err)
	require.Len(t, out, 1)
	for _, d := range fields {
		t.Run(d.Type.String(), func(t *testing.T) {
			v, ok := out[0].Value(d.ID)
			require.True(t, ok)
			assert.Equal(t, d.Type, v.Type())
			switch want := samples[d.Type].(type) {
			case time.Time:
				assertSameTime(t, want, v.Interface().(time.Time))
			case []time.Time:
				got := v.Interface().([]time.Time)
				require.Len(t, got, len(want))
				for i := range want {
					assertSameTime(t, want[i], got[i])
				}
			default:
				assert.Equal(t, want, v.Interface())
			}
		})
	}
}

func TestGraph_Versions(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true))

	v1 := entity.NewWithKey(customerType, "c1", 1).Set(fName, entity.String("first"))
	require.NoError(t, g.Save(ctx, v1))
	v2 := entity.NewWithKey(customerType, "c1", 2).Set(fName, entity.String("second"))
	require.NoError(t, g.Save(ctx, v2))

	out, err := g.LoadByIDs(ctx, "c1", "missing", "c1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(2), out[0].EditVersion)

	out, err = g.LoadByKeys(ctx, entity.Key{ID: "c1", EditVersion: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	name, _ := entity.Get[string](out[0], fName)
	assert.Equal(t, "first", name, "saving a new version leaves older versions intact")

	out, err = g.LoadByKeys(ctx, entity.Key{ID: "c1", EditVersion: 9})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGraph_CollectionShrink(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithCache(versa.NewMemoryCache()))

	c := entity.NewWithKey(customerType, "c1", 1).Set(fScores, entity.MustValue(field.TypeIntCollection, []int32{1, 2, 3}))
	require.NoError(t, g.Save(ctx, c))
	_, err := g.LoadByIDs(ctx, "c1")
	require.NoError(t, err)

	c.Set(fScores, entity.MustValue(field.TypeIntCollection, []int32{4}))
	require.NoError(t, g.Save(ctx, c))
	out, err := g.LoadByKeys(ctx, c.Key())
	require.NoError(t, err)
	require.Len(t, out, 1)
	scores, _ := entity.Get[[]int32](out[0], fScores)
	assert.Equal(t, []int32{4}, scores)
	assert.Equal(t, 1, count(t, drv, "SELECT COUNT(*) FROM versa_int_coll WHERE id = ?", "c1"))
}

func TestGraph_ResaveUnsetFields(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithCache(versa.NewMemoryCache()))

	addr := entity.NewWithKey(addressType, "a1", 1).Set(fStreet, entity.String("1 Main St"))
	c := entity.NewWithKey(customerType, "c1", 1).
		Set(fName, entity.String("Ada")).
		Set(fAge, entity.Int(36)).
		Set(fScores, entity.MustValue(field.TypeIntCollection, []int32{1, 2})).
		Set(fAddress, entity.Ref(addr))
	require.NoError(t, g.Save(ctx, c))
	_, err := g.LoadByKeys(ctx, c.Key())
	require.NoError(t, err)

	c.Unset(fName)
	c.Unset(fScores)
	c.Unset(fAddress)
	require.NoError(t, g.Save(ctx, c))

	out, err := g.LoadByKeys(ctx, c.Key())
	require.NoError(t, err)
	require.Len(t, out, 1)
	for _, fid := range []int32{fName, fScores, fAddress} {
		_, ok := out[0].Value(fid)
		assert.False(t, ok, "field %d", fid)
	}
	age, _ := entity.Get[int32](out[0], fAge)
	assert.Equal(t, int32(36), age)
	assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM versa_binding WHERE parent_id = ?", "c1"))
	assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM versa_int_coll WHERE id = ?", "c1"))
	assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM customer_view WHERE id = ? AND name IS NOT NULL", "c1"))
	assert.Equal(t, 1, count(t, drv, "SELECT COUNT(*) FROM versa_overview WHERE id = ?", "a1"), "children are kept")
}

func TestGraph_DuplicateChild(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true))

	d := dog("rex", "beagle")
	c := entity.New(customerType).Set(fPets, entity.Refs(d, d))
	require.NoError(t, g.Save(ctx, c))
	assert.Equal(t, 1, count(t, drv, "SELECT COUNT(*) FROM versa_binding"))
	assert.Equal(t, 1, count(t, drv, "SELECT seq FROM versa_binding"))
}

func TestGraph_LoadAllOfType(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true))

	a := entity.NewWithKey(animalType, "a", 1).Set(fAnimalName, entity.String("generic"))
	d := dog("rex", "beagle")
	d.ID = "b"
	require.NoError(t, g.Save(ctx, a, d))

	out, err := g.LoadAllOfType(ctx, animalType)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, dogType, out[1].EntityID)

	out, err = g.LoadAllOfType(ctx, dogType)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)

	_, err = g.LoadAllOfType(ctx, 99)
	assert.ErrorIs(t, err, versa.ErrUnknownEntity)
}

func TestGraph_Cycle(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true))

	a := entity.NewWithKey(customerType, "a", 1)
	b := entity.NewWithKey(customerType, "b", 1).Set(fAddress, entity.Ref(a))
	a.Set(fAddress, entity.Ref(b))
	err := g.Save(ctx, a)
	assert.True(t, versa.IsCycleDetected(err))
	assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'versa_overview'"), "nothing is written")

	// A distinct instance carrying the key of an ancestor closes a cycle too.
	again := entity.NewWithKey(customerType, "a", 1)
	b = entity.NewWithKey(customerType, "b", 1).Set(fAddress, entity.Ref(again))
	a = entity.NewWithKey(customerType, "a", 1).Set(fAddress, entity.Ref(b))
	err = g.Save(ctx, a)
	assert.True(t, versa.IsCycleDetected(err))
	assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'versa_binding'"), "nothing is written")
}

func TestGraph_Invalid(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t, openSQLite(t), newRegistry(t, true))

	err := g.Save(ctx, entity.New(99))
	assert.ErrorIs(t, err, versa.ErrUnknownEntity)

	err = g.Save(ctx, entity.New(addressType).Set(fName, entity.String("x")))
	assert.ErrorContains(t, err, "is not a field of entity Address")

	err = g.Save(ctx, entity.New(dogType).Set(fBreed, entity.Enum("poodle")))
	assert.True(t, versa.IsTypeMismatch(err))
}

func TestGraph_DanglingReference(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	require.NoError(t, newGraph(t, drv, newRegistry(t, true)).Save(ctx,
		entity.NewWithKey(customerType, "c1", 1).
			Set(fName, entity.String("Ada")).
			Set(fAddress, entity.Ref(entity.NewWithKey(addressType, "a1", 1))),
	))

	g := newGraph(t, drv, newRegistry(t, false))
	out, err := g.LoadByIDs(ctx, "c1", "a1")
	require.Error(t, err)
	assert.True(t, versa.IsDanglingReference(err))
	require.Len(t, out, 1)
	name, _ := entity.Get[string](out[0], fName)
	assert.Equal(t, "Ada", name)
	_, ok := out[0].Value(fAddress)
	assert.False(t, ok)

	var derr *versa.DanglingReferenceError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, []versa.DanglingRef{
		{ParentID: "c1", ParentEditVersion: 1, FieldID: fAddress, ChildID: "a1", ChildEditVersion: 1, EntityTypeID: addressType},
		{ChildID: "a1", ChildEditVersion: 1, EntityTypeID: addressType},
	}, derr.Refs)
}

func TestGraph_LivePointer(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithLivePointer(true))

	require.NoError(t, g.Save(ctx, entity.NewWithKey(customerType, "c1", 6)))
	require.NoError(t, g.Save(ctx, entity.NewWithKey(customerType, "c1", 5)))
	assert.Equal(t, 6, count(t, drv, "SELECT max_edit_version FROM versa_live_version WHERE id = ?", "c1"))
}

func TestGraph_LiveOnly(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	reg := newRegistry(t, true)
	require.NoError(t, newGraph(t, drv, reg).Save(ctx,
		entity.NewWithKey(customerType, "c1", 1),
		&entity.Instance{Overview: entity.Overview{Key: entity.Key{ID: "c1", EditVersion: 2}, EntityID: customerType}},
	))

	out, err := newGraph(t, drv, reg).LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(2), out[0].EditVersion)
	assert.False(t, out[0].Live)

	out, err = newGraph(t, drv, reg, sqlgraph.WithLiveOnly(true)).LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(1), out[0].EditVersion)
}

func TestGraph_Batches(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithBatchSize(2))

	var (
		roots []*entity.Instance
		ids   []string
	)
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		roots = append(roots, entity.NewWithKey(customerType, n, 1).Set(fName, entity.String(n)))
		ids = append(ids, n)
	}
	require.NoError(t, g.Save(ctx, roots...))
	out, err := g.LoadByIDs(ctx, ids...)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, o := range out {
		assert.Equal(t, ids[i], o.ID)
	}
}

func TestGraph_Cache(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	cache := versa.NewMemoryCache()
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithCache(cache))

	addr := entity.NewWithKey(addressType, "a1", 1).Set(fStreet, entity.String("1 Main St"))
	require.NoError(t, g.Save(ctx, entity.NewWithKey(customerType, "c1", 1).
		Set(fName, entity.String("Ada")).
		Set(fAddress, entity.Ref(addr))))
	assert.Zero(t, cache.Len())

	_, err := g.LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, drv.Exec(ctx, "UPDATE versa_string SET val = 'changed'", []any{}, nil))
	out, err := g.LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	name, _ := entity.Get[string](out[0], fName)
	assert.Equal(t, "Ada", name, "versions are served from the cache")
	a, ok := entity.Get[*entity.Instance](out[0], fAddress)
	require.True(t, ok)
	assert.Equal(t, addr.Key(), a.Key())

	require.NoError(t, g.Delete(ctx, "a1"))
	assert.Zero(t, cache.Len(), "parents of deleted versions are evicted")
	out, err = g.LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	_, ok = out[0].Value(fAddress)
	assert.False(t, ok)
}

func TestGraph_Delete(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithLivePointer(true))

	addr := entity.NewWithKey(addressType, "a1", 1).Set(fStreet, entity.String("1 Main St"))
	c := entity.NewWithKey(customerType, "c1", 1).
		Set(fName, entity.String("Ada")).
		Set(fScores, entity.MustValue(field.TypeIntCollection, []int32{1, 2})).
		Set(fAddress, entity.Ref(addr))
	require.NoError(t, g.Save(ctx, c))
	require.NoError(t, g.Save(ctx, entity.NewWithKey(customerType, "c1", 2).Set(fAddress, entity.Ref(addr))))

	require.NoError(t, g.Delete(ctx, "a1"))
	out, err := g.LoadByIDs(ctx, "c1")
	require.NoError(t, err, "bindings to deleted versions are removed")
	require.Len(t, out, 1)
	_, ok := out[0].Value(fAddress)
	assert.False(t, ok)

	require.NoError(t, g.Delete(ctx, "c1", "c1"))
	for _, table := range []string{"versa_overview", "versa_string", "versa_int_coll", "versa_binding", "versa_live_version", "customer_view"} {
		assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM "+table), table)
	}
	out, err = g.LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, g.Delete(ctx))
}

type recorder struct {
	mu     sync.Mutex
	events []string
	fail   error
}

func (r *recorder) add(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.fail
}

func (r *recorder) PreSave(context.Context, dialect.ExecQuerier, []*entity.Instance) error {
	return r.add("pre-save")
}

func (r *recorder) PostSave(context.Context, dialect.ExecQuerier, []*entity.Instance) error {
	return r.add("post-save")
}

func (r *recorder) PreLoad(context.Context, dialect.ExecQuerier, []entity.Key) error {
	return r.add("pre-load")
}

func (r *recorder) PostLoad(context.Context, dialect.ExecQuerier, []*entity.Instance) error {
	return r.add("post-load")
}

func TestGraph_Listeners(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	rec := &recorder{}
	g := newGraph(t, drv, newRegistry(t, true), sqlgraph.WithListeners(rec, "ignored"))

	require.NoError(t, g.Save(ctx, entity.NewWithKey(customerType, "c1", 1)))
	_, err := g.LoadByIDs(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-save", "post-save", "pre-load", "post-load"}, rec.events)

	rec.fail = errors.New("denied")
	err = g.Save(ctx, entity.NewWithKey(customerType, "c2", 1))
	var serr *versa.SaveError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, sqlgraph.PhaseListener, serr.Phase)
	assert.Zero(t, count(t, drv, "SELECT COUNT(*) FROM versa_overview WHERE id = ?", "c2"), "the batch is rolled back")
}
