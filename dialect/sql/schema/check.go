package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Severity grades an Issue.
type Severity uint8

const (
	// Warning marks drift that EnsureSchema repairs or that does not stop
	// the save engine from working.
	Warning Severity = iota + 1
	// Error marks a layout the save engine cannot write into.
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Issue is one finding of a layout check.
type Issue struct {
	Severity Severity
	Table    string
	Column   string
	Message  string
}

func (i *Issue) Error() string {
	if i.Column != "" {
		return fmt.Sprintf("%s.%s: %s", i.Table, i.Column, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Table, i.Message)
}

// Report collects the issues of a layout check in the order they were found.
type Report struct {
	Issues []*Issue
}

func (r *Report) add(sev Severity, t *Table, column, format string, args ...any) {
	r.Issues = append(r.Issues, &Issue{Severity: sev, Table: t.Name, Column: column, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) merge(o *Report) {
	r.Issues = append(r.Issues, o.Issues...)
}

func (r *Report) filter(sev Severity) []*Issue {
	var out []*Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// Errors returns the issues of severity Error.
func (r *Report) Errors() []*Issue { return r.filter(Error) }

// Warnings returns the issues of severity Warning.
func (r *Report) Warnings() []*Issue { return r.filter(Warning) }

// HasErrors reports if the check found a layout the engine cannot use.
func (r *Report) HasErrors() bool { return len(r.Errors()) > 0 }

// HasWarnings reports if the check found repairable drift.
func (r *Report) HasWarnings() bool { return len(r.Warnings()) > 0 }

// Err joins the error issues, or returns nil when there are none.
func (r *Report) Err() error {
	var errs []error
	for _, i := range r.Errors() {
		errs = append(errs, i)
	}
	return errors.Join(errs...)
}

// String lists the issues one per line, errors first.
func (r *Report) String() string {
	if len(r.Issues) == 0 {
		return "no issues"
	}
	var b strings.Builder
	for _, sev := range []Severity{Error, Warning} {
		for _, i := range r.filter(sev) {
			fmt.Fprintf(&b, "%-7s  %s\n", sev, i.Error())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CheckTable checks that t is a table the engine can create and write
// rows into.
func CheckTable(t *Table) *Report {
	r := &Report{}
	switch {
	case t.Name == "":
		r.add(Error, t, "", "table has no name")
		return r
	case len(t.Name) > maxIdentifier:
		r.add(Error, t, "", "name is longer than %d characters", maxIdentifier)
	case Identifier(t.Name) != t.Name:
		r.add(Error, t, "", "name is not a portable identifier")
	}
	if len(t.Columns) == 0 {
		r.add(Error, t, "", "table has no columns")
		return r
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.ToLower(c.Name)
		if seen[name] {
			r.add(Error, t, c.Name, "column is defined more than once")
		}
		seen[name] = true
		if !c.Type.Valid() {
			r.add(Error, t, c.Name, "column has invalid type %s", c.Type)
		}
	}
	if len(t.PrimaryKey) == 0 {
		r.add(Error, t, "", "table has no primary key")
	}
	for _, c := range t.PrimaryKey {
		if c.Nullable {
			r.add(Error, t, c.Name, "primary key column is nullable")
		}
	}
	for _, idx := range t.Indexes {
		for _, c := range idx.Columns {
			if !t.HasColumn(c.Name) {
				r.add(Error, t, c.Name, "index %s refers to an unknown column", idx.Name)
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		checkForeignKey(r, t, fk)
	}
	checkKind(r, t)
	return r
}

func checkForeignKey(r *Report, t *Table, fk *ForeignKey) {
	if fk.RefTable == nil {
		r.add(Error, t, "", "foreign key %s has no referenced table", fk.Symbol)
		return
	}
	if len(fk.Columns) != len(fk.RefColumns) {
		r.add(Error, t, "", "foreign key %s maps %d columns to %d", fk.Symbol, len(fk.Columns), len(fk.RefColumns))
		return
	}
	for i, c := range fk.Columns {
		ref := fk.RefColumns[i]
		switch {
		case !t.HasColumn(c.Name):
			r.add(Error, t, c.Name, "foreign key %s refers to an unknown column", fk.Symbol)
		case !fk.RefTable.HasColumn(ref.Name):
			r.add(Error, t, c.Name, "foreign key %s references unknown column %s.%s", fk.Symbol, fk.RefTable.Name, ref.Name)
		case c.Type != ref.Type:
			r.add(Error, t, c.Name, "foreign key %s joins %s to %s", fk.Symbol, c.Type, ref.Type)
		}
	}
}

// checkKind checks the columns the save engine relies on for tables it
// writes.
func checkKind(r *Report, t *Table) {
	var key []string
	switch t.kind {
	case kindOverview:
		key = []string{IDColumn, EditVersionColumn}
	case kindLive:
		key = []string{IDColumn}
		if !t.HasColumn(MaxEditVersionColumn) {
			r.add(Error, t, MaxEditVersionColumn, "live version table misses its version column")
		}
	case kindValue:
		key = []string{IDColumn, EditVersionColumn, FieldIDColumn}
	case kindCollection:
		key = []string{IDColumn, EditVersionColumn, FieldIDColumn, SeqColumn}
	case kindProjection:
		key = []string{IDColumn, EditVersionColumn}
		for _, c := range t.Columns {
			if t.isKey(c.Name) {
				continue
			}
			if !c.Nullable {
				r.add(Error, t, c.Name, "projected column is not nullable")
			}
			if !c.Type.Flattenable() {
				r.add(Error, t, c.Name, "type %s cannot be projected", c.Type)
			}
		}
	default:
		return
	}
	if got := t.PrimaryKeyNames(); !slicesEqual(got, key) {
		r.add(Error, t, "", "primary key is (%s), want (%s)", columnList(got), columnList(key))
	}
	if t.kind == kindValue || t.kind == kindCollection {
		c, ok := t.Column(ValueColumn)
		if !ok {
			r.add(Error, t, ValueColumn, "value table misses its value column")
			return
		}
		typ := c.Type
		if t.kind == kindCollection {
			typ = typ.Collection()
		}
		switch {
		case !c.Nullable:
			r.add(Error, t, ValueColumn, "value column is not nullable")
		case ValueTableName(typ) != t.Name:
			r.add(Error, t, ValueColumn, "value column of type %s is stored in the wrong table", c.Type)
		}
	}
}

// CheckLayout checks every table of a layout and the references between
// them.
func CheckLayout(tables []*Table) *Report {
	r := &Report{}
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		name := strings.ToLower(t.Name)
		if prev, ok := byName[name]; ok && prev != t {
			r.add(Error, t, "", "table name is used twice")
			continue
		}
		byName[name] = t
		r.merge(CheckTable(t))
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == nil {
				continue
			}
			if _, ok := byName[strings.ToLower(fk.RefTable.Name)]; !ok {
				r.add(Error, t, "", "foreign key %s references %s which is not part of the layout", fk.Symbol, fk.RefTable.Name)
			}
		}
	}
	return r
}

// CheckDrift compares the tables found in the database with the desired
// layout. Missing tables and columns are warnings since EnsureSchema adds
// them. Columns the layout no longer has are warnings on projection tables,
// which keep retired fields, and errors on the engine tables.
func CheckDrift(current, desired []*Table) *Report {
	r := &Report{}
	found := make(map[string]*Table, len(current))
	for _, t := range current {
		found[strings.ToLower(t.Name)] = t
	}
	for _, want := range desired {
		have, ok := found[strings.ToLower(want.Name)]
		if !ok {
			r.add(Warning, want, "", "table does not exist")
			continue
		}
		for _, c := range want.Columns {
			if have.HasColumn(c.Name) {
				continue
			}
			sev := Warning
			if want.isKey(c.Name) {
				sev = Error
			}
			r.add(sev, want, c.Name, "column does not exist")
		}
		for _, c := range have.Columns {
			if want.HasColumn(c.Name) {
				continue
			}
			if IsProjection(want) {
				r.add(Warning, want, c.Name, "column is no longer projected")
			} else {
				r.add(Error, want, c.Name, "column is not part of the layout")
			}
		}
	}
	return r
}

func (t *Table) isKey(name string) bool {
	for _, c := range t.PrimaryKey {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
