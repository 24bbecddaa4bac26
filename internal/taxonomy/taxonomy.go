// Package taxonomy holds the ordered scope -> category -> subcategory tree used to build keyboards.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/susu3304/gastobot/internal/ledger"
)

// PocketMarker prefixes subcategories that need an income/expense/savings choice.
const PocketMarker = "[Bolsillo]"

// MaxNameBytes bounds names so "STEP|name" fits a 100-byte button id.
const MaxNameBytes = 90

// MaxOptions is how many categories a scope, or subcategories a category, may list:
// one keyboard shows four rows of five buttons above the cancel row.
const MaxOptions = 20

//go:embed default.yaml
var defaultYAML []byte

type Category struct {
	Name          string
	Subcategories []string
}

type Taxonomy struct {
	scopes     []ledger.Scope
	categories map[ledger.Scope][]Category
}

// Default returns the built-in household taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded default is invalid: %v", err))
	}
	return t
}

// Load reads a taxonomy file, or returns Default when path is empty.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse decodes `{scope: {category: [subcategory, ...]}}` keeping document order.
func Parse(data []byte) (*Taxonomy, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse taxonomy: top level must be a mapping of scopes")
	}

	t := &Taxonomy{categories: make(map[ledger.Scope][]Category)}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		scope, ok := ledger.ParseScope(root.Content[i].Value)
		if !ok {
			return nil, fmt.Errorf("parse taxonomy: unknown scope %q (line %d)", root.Content[i].Value, root.Content[i].Line)
		}
		if _, dup := t.categories[scope]; dup {
			return nil, fmt.Errorf("parse taxonomy: scope %s listed twice", scope)
		}
		cats, err := parseCategories(root.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("parse taxonomy: scope %s: %w", scope, err)
		}
		t.scopes = append(t.scopes, scope)
		t.categories[scope] = cats
	}
	if len(t.scopes) == 0 {
		return nil, fmt.Errorf("parse taxonomy: no scopes defined")
	}
	return t, nil
}

func parseCategories(n *yaml.Node) ([]Category, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of categories", n.Line)
	}
	var out []Category
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := strings.TrimSpace(n.Content[i].Value)
		if name == "" {
			return nil, fmt.Errorf("line %d: empty category name", n.Content[i].Line)
		}
		if strings.Contains(name, "|") {
			return nil, fmt.Errorf("line %d: category %q must not contain '|'", n.Content[i].Line, name)
		}
		if len(name) > MaxNameBytes {
			return nil, fmt.Errorf("line %d: category %q is longer than %d bytes", n.Content[i].Line, name, MaxNameBytes)
		}
		var subs []string
		v := n.Content[i+1]
		switch {
		case v.Kind == yaml.ScalarNode && v.Tag == "!!null":
		case v.Kind == yaml.SequenceNode:
			if err := v.Decode(&subs); err != nil {
				return nil, fmt.Errorf("line %d: %w", v.Line, err)
			}
			if len(subs) > MaxOptions {
				return nil, fmt.Errorf("line %d: %q has %d subcategories, at most %d fit a keyboard", v.Line, name, len(subs), MaxOptions)
			}
			for _, sub := range subs {
				if len(sub) > MaxNameBytes {
					return nil, fmt.Errorf("line %d: subcategory %q is longer than %d bytes", v.Line, sub, MaxNameBytes)
				}
			}
		default:
			return nil, fmt.Errorf("line %d: subcategories of %q must be a list", v.Line, name)
		}
		out = append(out, Category{Name: name, Subcategories: subs})
	}
	if len(out) > MaxOptions {
		return nil, fmt.Errorf("line %d: %d categories, at most %d fit a keyboard", n.Line, len(out), MaxOptions)
	}
	return out, nil
}

func (t *Taxonomy) Scopes() []ledger.Scope {
	return append([]ledger.Scope(nil), t.scopes...)
}

func (t *Taxonomy) Categories(scope ledger.Scope) []Category {
	return t.categories[scope]
}

func (t *Taxonomy) Category(scope ledger.Scope, name string) (Category, bool) {
	for _, c := range t.categories[scope] {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// HasSubcategory reports whether raw (marker included) belongs to the category.
func (t *Taxonomy) HasSubcategory(scope ledger.Scope, category, raw string) bool {
	c, ok := t.Category(scope, category)
	if !ok {
		return false
	}
	for _, s := range c.Subcategories {
		if s == raw {
			return true
		}
	}
	return false
}

func IsPocket(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), PocketMarker)
}

// DisplayName strips the pocket marker.
func DisplayName(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), PocketMarker))
}
