// Package vocabulary holds the controlled tag vocabulary used to sanitise
// search intents and to interpret candidate tags during ranking.
package vocabulary

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
)

//go:embed default.yaml
var defaultDocument []byte

// Document is the on-disk form of a vocabulary.
type Document struct {
	Version    string            `yaml:"version" json:"version" validate:"required"`
	Categories []CategoryEntry   `yaml:"categories" json:"categories" validate:"required,min=1,dive"`
	VisualTags []string          `yaml:"visual_tags" json:"visual_tags" validate:"dive,required"`
	SceneTags  []string          `yaml:"scene_tags" json:"scene_tags" validate:"dive,required"`
	Implies    map[string]string `yaml:"implies" json:"implies" validate:"dive,keys,required,endkeys,required"`
}

// CategoryEntry names a category and the group it belongs to. Categories in
// the same group count as near matches during ranking.
type CategoryEntry struct {
	Name  string `yaml:"name" json:"name" validate:"required"`
	Group string `yaml:"group" json:"group" validate:"required"`
}

// Snapshot is an immutable, versioned view of the vocabulary. A request
// captures one snapshot at its start and uses it throughout.
type Snapshot struct {
	version    string
	groups     map[string]string
	visualTags map[string]struct{}
	sceneTags  map[string]struct{}
	implies    map[string]string
	doc        Document
}

var validate = validator.New()

// Parse decodes and validates a YAML vocabulary document.
func Parse(data []byte) (*Snapshot, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	return NewSnapshot(doc)
}

// LoadFile reads a vocabulary document from disk.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewVocabularyLoadError(err, path)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, apperrors.NewVocabularyLoadError(err, path)
	}
	return snap, nil
}

// Default returns the vocabulary compiled into the binary.
func Default() *Snapshot {
	snap, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary is invalid: %v", err))
	}
	return snap
}

// NewSnapshot validates doc and builds its lookup tables.
func NewSnapshot(doc Document) (*Snapshot, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid vocabulary document: %w", err)
	}

	s := &Snapshot{
		version:    doc.Version,
		groups:     make(map[string]string, len(doc.Categories)),
		visualTags: make(map[string]struct{}, len(doc.VisualTags)),
		sceneTags:  make(map[string]struct{}, len(doc.SceneTags)),
		implies:    make(map[string]string, len(doc.Implies)),
	}

	for _, c := range doc.Categories {
		name := Key(c.Name)
		if _, dup := s.groups[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		s.groups[name] = Key(c.Group)
	}
	for _, t := range doc.VisualTags {
		s.visualTags[Key(t)] = struct{}{}
	}
	for _, t := range doc.SceneTags {
		s.sceneTags[Key(t)] = struct{}{}
	}
	for tag, category := range doc.Implies {
		category = Key(category)
		if _, ok := s.groups[category]; !ok {
			return nil, fmt.Errorf("tag %q implies unknown category %q", tag, category)
		}
		s.implies[Key(tag)] = category
	}

	s.doc = copyDocument(doc)
	return s, nil
}

// Version identifies the snapshot.
func (s *Snapshot) Version() string {
	return s.version
}

// Contains reports whether tag is part of the vocabulary. Categories, visual
// tags and scene tags are all valid query tags.
func (s *Snapshot) Contains(tag string) bool {
	tag = Key(tag)
	if _, ok := s.groups[tag]; ok {
		return true
	}
	if _, ok := s.visualTags[tag]; ok {
		return true
	}
	_, ok := s.sceneTags[tag]
	return ok
}

// IsCategory reports whether tag names a category.
func (s *Snapshot) IsCategory(tag string) bool {
	_, ok := s.groups[Key(tag)]
	return ok
}

// CategoryFor interprets a tag as a category: categories map to themselves,
// visual tags map to the category they imply.
func (s *Snapshot) CategoryFor(tag string) (string, bool) {
	tag = Key(tag)
	if _, ok := s.groups[tag]; ok {
		return tag, true
	}
	category, ok := s.implies[tag]
	return category, ok
}

// Group returns the category group of category.
func (s *Snapshot) Group(category string) (string, bool) {
	group, ok := s.groups[Key(category)]
	return group, ok
}

// Categories returns the category names in sorted order.
func (s *Snapshot) Categories() []string {
	out := make([]string, 0, len(s.groups))
	for c := range s.groups {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Tags returns every valid query tag in sorted order.
func (s *Snapshot) Tags() []string {
	seen := make(map[string]struct{}, len(s.groups)+len(s.visualTags)+len(s.sceneTags))
	for c := range s.groups {
		seen[c] = struct{}{}
	}
	for t := range s.visualTags {
		seen[t] = struct{}{}
	}
	for t := range s.sceneTags {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Document returns a copy of the source document.
func (s *Snapshot) Document() Document {
	return copyDocument(s.doc)
}

func copyDocument(doc Document) Document {
	out := Document{
		Version:    doc.Version,
		Categories: append([]CategoryEntry(nil), doc.Categories...),
		VisualTags: append([]string(nil), doc.VisualTags...),
		SceneTags:  append([]string(nil), doc.SceneTags...),
		Implies:    make(map[string]string, len(doc.Implies)),
	}
	for k, v := range doc.Implies {
		out.Implies[k] = v
	}
	return out
}
