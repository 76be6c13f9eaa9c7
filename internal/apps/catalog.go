package apps

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Meta is the bundled description of one app.
type Meta struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Categories  []string `yaml:"categories"`
	Logo        string   `yaml:"logo"`
	Description string   `yaml:"description"`
}

func (m Meta) HasCategory(category string) bool {
	return slices.Contains(m.Categories, category)
}

// Catalog is the ordered set of bundled apps.
type Catalog struct {
	apps   []Meta
	bySlug map[string]int
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Apps []Meta `yaml:"apps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse app catalog: %w", err)
	}

	c := &Catalog{apps: doc.Apps, bySlug: make(map[string]int, len(doc.Apps))}
	for i, m := range doc.Apps {
		if m.Slug == "" || m.Name == "" || len(m.Categories) == 0 {
			return nil, fmt.Errorf("app catalog entry %d: slug, name and categories are required", i)
		}
		if _, dup := c.bySlug[m.Slug]; dup {
			return nil, fmt.Errorf("app catalog: duplicate slug %q", m.Slug)
		}
		if _, ok := schemas[SchemaKey(m.Type)]; !ok {
			return nil, fmt.Errorf("app catalog: no key schema for %q (type %q)", m.Slug, m.Type)
		}
		c.bySlug[m.Slug] = i
	}
	return c, nil
}

// All returns the apps in catalog order.
func (c *Catalog) All() []Meta {
	return slices.Clone(c.apps)
}

func (c *Catalog) Lookup(slug string) (Meta, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Meta{}, false
	}
	return c.apps[i], true
}
