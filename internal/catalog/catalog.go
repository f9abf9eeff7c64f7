// Package catalog holds the soil variant content definitions: one terrain
// variant per (state, fertility percent) pair, plus the base variant placed by
// fresh tilling.
package catalog

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed soil_variants.schema.json
var schemaJSON string

const schemaURL = "https://tilth.local/schemas/soil_variants.schema.json"

// Variant is one concrete enriched-ground terrain.
type Variant struct {
	ID               string `json:"id"`
	State            string `json:"state"` // "Rich", "Weathered", "Depleted"
	FertilityPercent int    `json:"fertility_percent"`
}

// File is the on-disk catalog layout.
type File struct {
	Base     string    `json:"base"`
	Variants []Variant `json:"variants"`
}

// Catalog indexes variants by id.
type Catalog struct {
	Base   string
	ByID   map[string]Variant
	Digest string
}

// VariantID composes the deterministic id of a variant.
func VariantID(prefix, state string, percent int) string {
	return fmt.Sprintf("%s_%s_%d", prefix, state, percent)
}

// New builds a catalog, rejecting duplicate ids and a base id that collides
// with a variant.
func New(base string, variants []Variant) (*Catalog, error) {
	if base == "" {
		return nil, fmt.Errorf("catalog: empty base variant")
	}
	byID := make(map[string]Variant, len(variants))
	for _, v := range variants {
		if v.ID == base {
			return nil, fmt.Errorf("catalog: variant %q shadows the base variant", v.ID)
		}
		if _, dup := byID[v.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate variant %q", v.ID)
		}
		byID[v.ID] = v
	}
	c := &Catalog{Base: base, ByID: byID}
	c.Digest = c.digest()
	return c, nil
}

// Generate builds a complete catalog: every state at every 10% step in [minPct, maxPct].
func Generate(prefix, base string, states []string, minPct, maxPct int) *Catalog {
	var variants []Variant
	for _, s := range states {
		for p := minPct; p <= maxPct; p += 10 {
			variants = append(variants, Variant{ID: VariantID(prefix, s, p), State: s, FertilityPercent: p})
		}
	}
	c, err := New(base, variants)
	if err != nil {
		// Generated ids are unique by construction; only a base/prefix clash lands here.
		panic(err)
	}
	return c
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse validates raw JSON against the catalog schema and builds the catalog.
func Parse(raw []byte) (*Catalog, error) {
	sch, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	var f File
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Base, f.Variants)
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	sch, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	return sch, nil
}

// Lookup returns the variant with the given id.
func (c *Catalog) Lookup(id string) (Variant, bool) {
	v, ok := c.ByID[id]
	return v, ok
}

// BaseVariant returns the id placed by fresh tilling.
func (c *Catalog) BaseVariant() string {
	return c.Base
}

// IsBase reports whether id is the freshly tilled, unclassified variant.
func (c *Catalog) IsBase(id string) bool {
	return id != "" && id == c.Base
}

// IsSoil reports whether id is any tilled-soil variant, base included.
func (c *Catalog) IsSoil(id string) bool {
	if c.IsBase(id) {
		return true
	}
	_, ok := c.ByID[id]
	return ok
}

// Len returns the number of classified variants (base excluded).
func (c *Catalog) Len() int {
	return len(c.ByID)
}

// IDs returns all classified variant ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.ByID))
	for id := range c.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Suggest returns the known id closest to id by edit distance, or "" for an
// empty catalog. Used to make content-gap warnings actionable.
func (c *Catalog) Suggest(id string) string {
	best := ""
	bestDist := -1
	for _, cand := range c.IDs() {
		d := levenshtein.ComputeDistance(id, cand)
		if bestDist < 0 || d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

func (c *Catalog) digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "base=%s\n", c.Base)
	for _, id := range c.IDs() {
		v := c.ByID[id]
		fmt.Fprintf(h, "%s:%s:%d\n", v.ID, v.State, v.FertilityPercent)
	}
	return hex.EncodeToString(h.Sum(nil))
}
