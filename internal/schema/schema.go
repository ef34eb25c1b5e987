// Package schema describes the tables, columns, functions, operators and cast
// types a generated query may reference.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
)

//go:embed default.yaml
var defaultDocument []byte

// Document is the on-disk form of a schema descriptor.
type Document struct {
	Version   string           `yaml:"version" json:"version" validate:"required"`
	Tables    map[string]Table `yaml:"tables" json:"tables" validate:"required,min=1,dive"`
	Functions []string         `yaml:"functions" json:"functions" validate:"dive,required"`
	Operators []string         `yaml:"operators" json:"operators" validate:"dive,required"`
	Types     []string         `yaml:"types" json:"types" validate:"dive,required"`
}

// Table lists the queryable columns of one table.
type Table struct {
	Description string   `yaml:"description" json:"description,omitempty"`
	Columns     []string `yaml:"columns" json:"columns" validate:"required,min=1,dive,required"`
}

// Descriptor is the immutable allow-list derived from a Document. Names are
// matched case-insensitively; operators are matched exactly.
type Descriptor struct {
	version   string
	tables    map[string]map[string]struct{}
	functions map[string]struct{}
	operators map[string]struct{}
	types     map[string]struct{}
	doc       Document
}

var validate = validator.New()

// Parse decodes and validates a YAML schema document.
func Parse(data []byte) (*Descriptor, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema descriptor: %w", err)
	}
	return New(doc)
}

// LoadFile reads a schema descriptor from disk.
func LoadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewSchemaLoadError(err, path)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, apperrors.NewSchemaLoadError(err, path)
	}
	return d, nil
}

// Default returns the descriptor compiled into the binary.
func Default() *Descriptor {
	d, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("embedded schema descriptor is invalid: %v", err))
	}
	return d
}

// New validates doc and builds a Descriptor.
func New(doc Document) (*Descriptor, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid schema descriptor: %w", err)
	}

	d := &Descriptor{
		version:   doc.Version,
		tables:    make(map[string]map[string]struct{}, len(doc.Tables)),
		functions: toSet(doc.Functions, true),
		operators: toSet(doc.Operators, false),
		types:     toSet(doc.Types, true),
		doc:       doc,
	}
	for name, table := range doc.Tables {
		d.tables[fold(name)] = toSet(table.Columns, true)
	}
	return d, nil
}

// Version identifies the descriptor.
func (d *Descriptor) Version() string {
	return d.version
}

// HasTable reports whether table may be referenced.
func (d *Descriptor) HasTable(table string) bool {
	_, ok := d.tables[fold(table)]
	return ok
}

// HasColumn reports whether column belongs to table.
func (d *Descriptor) HasColumn(table, column string) bool {
	cols, ok := d.tables[fold(table)]
	if !ok {
		return false
	}
	_, ok = cols[fold(column)]
	return ok
}

// HasAnyColumn reports whether column belongs to any table.
func (d *Descriptor) HasAnyColumn(column string) bool {
	for _, cols := range d.tables {
		if _, ok := cols[fold(column)]; ok {
			return true
		}
	}
	return false
}

func (d *Descriptor) HasFunction(name string) bool {
	_, ok := d.functions[fold(name)]
	return ok
}

func (d *Descriptor) HasOperator(op string) bool {
	_, ok := d.operators[op]
	return ok
}

func (d *Descriptor) HasType(name string) bool {
	_, ok := d.types[fold(name)]
	return ok
}

// TableNames returns the allowed tables in sorted order.
func (d *Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.doc.Tables))
	for name := range d.doc.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the document entry for name.
func (d *Descriptor) Table(name string) (Table, bool) {
	for n, t := range d.doc.Tables {
		if fold(n) == fold(name) {
			return Table{Description: t.Description, Columns: append([]string(nil), t.Columns...)}, true
		}
	}
	return Table{}, false
}

// Functions returns the allowed function names.
func (d *Descriptor) Functions() []string {
	return append([]string(nil), d.doc.Functions...)
}

// Operators returns the allowed operators.
func (d *Descriptor) Operators() []string {
	return append([]string(nil), d.doc.Operators...)
}

// Types returns the allowed cast types.
func (d *Descriptor) Types() []string {
	return append([]string(nil), d.doc.Types...)
}

func toSet(values []string, foldCase bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if foldCase {
			v = fold(v)
		}
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
