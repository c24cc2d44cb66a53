package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyCatalog = errors.New("catalog: no entities or items defined")
	ErrMissingType  = errors.New("catalog: entity missing type")
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Info is the free-form attribute set of one entity or item prototype.
type Info map[string]any

// Recipe describes how one item is crafted.
type Recipe struct {
	Ingredients    []map[string]int `yaml:"ingredients" json:"ingredients"`
	Result         string           `yaml:"result" json:"result"`
	ResultCount    int              `yaml:"result_count" json:"result_count"`
	EnergyRequired float64          `yaml:"energy_required" json:"energy_required"`
	Category       string           `yaml:"category" json:"category"`
}

type document struct {
	EntityGroups map[string][]string `yaml:"entity_groups"`
	Entities     map[string]Info     `yaml:"entities"`
	Items        map[string]Info     `yaml:"items"`
	Recipes      map[string]Recipe   `yaml:"recipes"`
}

// Catalog is the read-only prototype lookup service. It is static for the
// lifetime of the process and safe for concurrent readers.
type Catalog struct {
	groups   map[string][]string
	entities map[string]Info
	items    map[string]Info
	recipes  map[string]Recipe
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog load failed (%s): %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog parse failed: %w", err)
	}
	if len(doc.Entities) == 0 && len(doc.Items) == 0 {
		return nil, ErrEmptyCatalog
	}
	for name, info := range doc.Entities {
		if t, _ := info["type"].(string); strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingType, name)
		}
	}
	c := &Catalog{
		groups:   doc.EntityGroups,
		entities: doc.Entities,
		items:    doc.Items,
		recipes:  doc.Recipes,
	}
	if c.groups == nil {
		c.groups = map[string][]string{}
	}
	if c.items == nil {
		c.items = map[string]Info{}
	}
	if c.entities == nil {
		c.entities = map[string]Info{}
	}
	if c.recipes == nil {
		c.recipes = map[string]Recipe{}
	}
	return c, nil
}

func (c *Catalog) IsValidEntity(name string) bool {
	_, ok := c.entities[name]
	return ok
}

func (c *Catalog) IsValidItem(name string) bool {
	_, ok := c.items[name]
	return ok
}

func (c *Catalog) EntityInfo(name string) (Info, bool) {
	info, ok := c.entities[name]
	return info, ok
}

func (c *Catalog) ItemInfo(name string) (Info, bool) {
	info, ok := c.items[name]
	return info, ok
}

// EntitiesOfType returns entity names whose prototype type equals t, sorted.
func (c *Catalog) EntitiesOfType(t string) []string {
	out := make([]string, 0)
	for name, info := range c.entities {
		if got, _ := info["type"].(string); got == t {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Group returns the entity types listed under a named group (production, energy, ...).
func (c *Catalog) Group(name string) []string {
	return append([]string(nil), c.groups[name]...)
}

func (c *Catalog) EntityNames() []string {
	return sortedKeys(c.entities)
}

func (c *Catalog) ItemNames() []string {
	return sortedKeys(c.items)
}

func (c *Catalog) RecipeNames() []string {
	out := make([]string, 0, len(c.recipes))
	for name := range c.recipes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RecipeFor returns the recipe producing item, if any.
func (c *Catalog) RecipeFor(item string) (Recipe, bool) {
	for _, name := range c.RecipeNames() {
		if r := c.recipes[name]; r.Result == item {
			return r, true
		}
	}
	return Recipe{}, false
}

func sortedKeys(m map[string]Info) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
