package gen

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/tools/imports"

	"github.com/syssam/versa/schema/catalog"
	"github.com/syssam/versa/schema/field"
)

// registerFile holds the registration code of all entity types.
const registerFile = "register.go"

// Generator renders one typed wrapper file per entity type and a
// registration file for the whole catalog.
//
// Files are rendered with jennifer and then passed through goimports.
// Rendering runs on Config.Workers goroutines.
type Generator struct {
	graph *Graph

	mu      sync.Mutex
	metrics Metrics
	written map[string]bool
}

// Metrics tracks generation output.
type Metrics struct {
	FilesGenerated int
	FilesRemoved   int
	TotalBytes     int64
	Duration       time.Duration
}

// NewGenerator returns a generator for g.
func NewGenerator(g *Graph) *Generator {
	return &Generator{graph: g, written: make(map[string]bool)}
}

// Metrics returns the metrics of the last Generate call.
func (g *Generator) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics
}

// Generate writes all files into Config.Target and removes generated files
// of entity types that are no longer in the catalog.
func (g *Generator) Generate(ctx context.Context) error {
	start := time.Now()
	g.mu.Lock()
	g.metrics = Metrics{}
	g.written = make(map[string]bool)
	g.mu.Unlock()

	cfg := g.graph.Config
	if cfg.Target == "" {
		return configError("Target", nil, "missing target directory in config")
	}
	if err := os.MkdirAll(cfg.Target, 0o755); err != nil {
		return outputError("write", cfg.Target, "create output directory", err)
	}

	errg, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		errg.SetLimit(cfg.Workers)
	}
	for _, t := range g.graph.Nodes {
		errg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return g.writeFile(g.genType(t), t.File())
		})
	}
	errg.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return g.writeFile(g.genRegister(), registerFile)
	})
	if err := errg.Wait(); err != nil {
		return err
	}
	if err := g.prune(); err != nil {
		return err
	}
	g.mu.Lock()
	g.metrics.Duration = time.Since(start)
	g.mu.Unlock()
	return nil
}

// writeFile renders f, formats it with goimports and writes it to disk. On
// a formatting failure the raw output is written to "<file>.error".
func (g *Generator) writeFile(f *jen.File, name string) error {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return outputError("render", name, "", err)
	}
	path := filepath.Join(g.graph.Target, name)
	formatted, err := imports.Process(path, buf.Bytes(), nil)
	if err != nil {
		debugPath := path + ".error"
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return outputError("format", name, fmt.Sprintf("unformatted output written to %s", debugPath), err)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return outputError("write", name, "", err)
	}
	g.mu.Lock()
	g.metrics.FilesGenerated++
	g.metrics.TotalBytes += int64(len(formatted))
	g.written[name] = true
	g.mu.Unlock()
	return nil
}

// prune removes Go files in the target directory that carry the generated
// header but were not written by this run.
func (g *Generator) prune() error {
	entries, err := os.ReadDir(g.graph.Target)
	if err != nil {
		return outputError("prune", g.graph.Target, "", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") || g.written[name] {
			continue
		}
		path := filepath.Join(g.graph.Target, name)
		ok, err := g.generated(path)
		if err != nil {
			return outputError("prune", name, "", err)
		}
		if !ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			return outputError("prune", name, "", err)
		}
		g.mu.Lock()
		g.metrics.FilesRemoved++
		g.mu.Unlock()
	}
	return nil
}

// generated reports if the first line of the file is the generated header.
func (g *Generator) generated(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	if !s.Scan() {
		return false, s.Err()
	}
	return g.graph.Header != "" && s.Text() == "// "+g.graph.Header, nil
}

func (g *Generator) newFile() *jen.File {
	f := jen.NewFile(g.graph.Package)
	if g.graph.Header != "" {
		f.HeaderComment(g.graph.Header)
	}
	return f
}

// genType renders the wrapper of t: the struct, its id constants, the
// constructors and one getter and setter per field.
func (g *Generator) genType(t *Type) *jen.File {
	f := g.newFile()
	display := title(t.Name)
	name, recv := t.GoName, t.Receiver()

	f.Commentf("%s wraps an instance of the %s entity type.", name, display)
	f.Type().Id(name).Struct(jen.Op("*").Qual(entityPkg, "Instance"))

	consts := []jen.Code{
		jen.Commentf("%sEntityID is the id of the %s entity type.", name, display),
		jen.Id(name+"EntityID").Int32().Op("=").Lit(int(t.ID)),
	}
	for _, fd := range t.AllFields() {
		consts = append(consts,
			jen.Commentf("%s is the id of the %s field.", fieldConst(t, fd), fd.Name),
			jen.Id(fieldConst(t, fd)).Int32().Op("=").Lit(int(fd.ID)),
		)
	}
	f.Const().Defs(consts...)

	f.Commentf("New%s returns an empty live %s.", name, display)
	f.Func().Id("New"+name).Params().Op("*").Id(name).Block(
		jen.Return(jen.Op("&").Id(name).Values(jen.Dict{
			jen.Id("Instance"): jen.Qual(entityPkg, "New").Call(jen.Id(name + "EntityID")),
		})),
	)

	closure := t.Closure()
	ids := make([]jen.Code, len(closure))
	for i, id := range closure {
		ids[i] = jen.Lit(int(id))
	}
	f.Commentf("As%s wraps i if it is an instance of %s or one of its subtypes.", name, display)
	f.Func().Id("As"+name).Params(jen.Id("i").Op("*").Qual(entityPkg, "Instance")).Params(jen.Op("*").Id(name), jen.Bool()).Block(
		jen.If(jen.Id("i").Op("==").Nil()).Block(jen.Return(jen.Nil(), jen.False())),
		jen.Switch(jen.Id("i").Dot("EntityID")).Block(
			jen.Case(ids...).Block(jen.Return(jen.Op("&").Id(name).Values(jen.Dict{jen.Id("Instance"): jen.Id("i")}), jen.True())),
		),
		jen.Return(jen.Nil(), jen.False()),
	)

	for _, fd := range t.AllFields() {
		g.genAccessors(f, t, fd, name, recv)
	}
	return f
}

func (g *Generator) genAccessors(f *jen.File, t *Type, fd *Field, name, recv string) {
	id := jen.Id(fieldConst(t, fd))
	typ := goType(fd.Type)

	f.Commentf("%s returns the %s field.", fd.GoName, title(fd.Name))
	if fd.Description != "" {
		f.Comment(fd.Description)
	}
	f.Func().Params(jen.Id(recv).Op("*").Id(name)).Id(fd.GoName).Params().Params(typ, jen.Bool()).Block(
		jen.Return(jen.Qual(entityPkg, "Get").Types(goType(fd.Type)).Call(jen.Id(recv).Dot("Instance"), id.Clone())),
	)

	arg := "v"
	if recv == arg {
		arg = "val"
	}
	var (
		param jen.Code
		value jen.Code
	)
	switch fd.Type {
	case field.TypeEntity:
		param = jen.Id(arg).Op("*").Qual(entityPkg, "Instance")
		value = jen.Qual(entityPkg, "Ref").Call(jen.Id(arg))
	case field.TypeEntityCollection:
		param = jen.Id(arg).Op("...").Op("*").Qual(entityPkg, "Instance")
		value = jen.Qual(entityPkg, "Refs").Call(jen.Id(arg).Op("..."))
	default:
		param = jen.Id(arg).Add(goType(fd.Type))
		value = jen.Qual(entityPkg, "MustValue").Call(typeConstant(fd.Type), jen.Id(arg))
	}
	f.Commentf("Set%s sets the %s field.", fd.GoName, title(fd.Name))
	f.Func().Params(jen.Id(recv).Op("*").Id(name)).Id("Set"+fd.GoName).Params(param).Op("*").Id(name).Block(
		jen.Id(recv).Dot("Instance").Dot("Set").Call(id.Clone(), value),
		jen.Return(jen.Id(recv)),
	)
}

// genRegister renders EntityTypes and Register.
func (g *Generator) genRegister() *jen.File {
	f := g.newFile()
	f.PackageComment(fmt.Sprintf("Package %s holds typed wrappers of the catalog entity types.", g.graph.Package))

	types := make([]jen.Code, 0, len(g.graph.Nodes))
	for _, t := range g.graph.Nodes {
		d := jen.Dict{
			jen.Id("ID"):   jen.Id(t.GoName + "EntityID"),
			jen.Id("Name"): jen.Lit(t.Name),
		}
		if len(t.Parents) > 0 {
			parents := make([]jen.Code, len(t.Parents))
			for i, p := range t.Parents {
				parents[i] = jen.Id(p.GoName + "EntityID")
			}
			d[jen.Id("Parents")] = jen.Index().Int32().Values(parents...)
		}
		if len(t.Fields) > 0 {
			fields := make([]jen.Code, len(t.Fields))
			for i, fd := range t.Fields {
				fields[i] = jen.Line().Add(descriptor(fd.Descriptor))
			}
			fields = append(fields, jen.Line())
			d[jen.Id("Fields")] = jen.Index().Op("*").Qual(fieldPkg, "Descriptor").Values(fields...)
		}
		if t.Projection != "" {
			d[jen.Id("Projection")] = jen.Lit(t.Projection)
		}
		types = append(types, jen.Values(d))
	}

	f.Comment("EntityTypes returns the entity types of the catalog, parents first.")
	f.Func().Id("EntityTypes").Params().Index().Qual(schemaPkg, "EntityType").Block(
		jen.Return(jen.Index().Qual(schemaPkg, "EntityType").ValuesFunc(func(grp *jen.Group) {
			for _, c := range types {
				grp.Line().Add(c)
			}
			grp.Line()
		})),
	)

	f.Comment("Register registers every entity type of the catalog with r.")
	f.Func().Id("Register").Params(jen.Id("r").Op("*").Qual(schemaPkg, "Registry")).Error().Block(
		jen.For(jen.List(jen.Id("_"), jen.Id("t")).Op(":=").Range().Id("EntityTypes").Call()).Block(
			jen.If(jen.Err().Op(":=").Id("r").Dot("RegisterEntityType").Call(jen.Id("t")), jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Err()),
			),
		),
		jen.Return(jen.Nil()),
	)
	return f
}

func fieldConst(t *Type, f *Field) string {
	return t.GoName + "Field" + f.GoName
}

// title returns the display form of a catalog name, e.g. "Full Name".
func title(name string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

// Run loads the catalog at path and generates its wrappers.
func Run(ctx context.Context, path string, opts ...Option) (Metrics, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return Metrics{}, err
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return Metrics{}, catalogError(path, "", "", err)
	}
	g, err := NewGraph(cfg, cat)
	if err != nil {
		return Metrics{}, err
	}
	gen := NewGenerator(g)
	if err := gen.Generate(ctx); err != nil {
		return Metrics{}, err
	}
	return gen.Metrics(), nil
}
