package soil

import (
	"errors"
	"fmt"

	"github.com/talgya/tilth/internal/catalog"
)

// ErrVariantNotFound marks a content gap: the catalog has no variant for the
// computed (state, percent) pair.
var ErrVariantNotFound = errors.New("soil variant not found")

// Resolver maps a baseline fertility and a target state to a variant id.
// It reads the catalog and nothing else.
type Resolver struct {
	Catalog    VariantCatalog
	Prefix     string
	Bonus      [3]int // indexed by State
	MinPercent int
	MaxPercent int
}

// NewResolver builds a resolver from lifecycle params.
func NewResolver(p Params, c VariantCatalog) Resolver {
	return Resolver{
		Catalog:    c,
		Prefix:     p.VariantPrefix,
		Bonus:      [3]int{p.BonusRich, p.BonusWeathered, p.BonusDepleted},
		MinPercent: p.MinPercent,
		MaxPercent: p.MaxPercent,
	}
}

// Percent is the displayed fertility of state s over the given baseline:
// baseline plus the state bonus, rounded to the nearest 10, clamped to range.
func (r Resolver) Percent(baseline int, s State) int {
	v := roundToTen(baseline + r.bonus(s))
	if v < r.MinPercent {
		v = r.MinPercent
	}
	if v > r.MaxPercent {
		v = r.MaxPercent
	}
	return v
}

// Resolve returns the variant id for state s over the baseline. On a content
// gap the composed id is still returned alongside ErrVariantNotFound.
func (r Resolver) Resolve(baseline int, s State) (string, error) {
	id := catalog.VariantID(r.Prefix, s.String(), r.Percent(baseline, s))
	if _, ok := r.Catalog.Lookup(id); !ok {
		return id, fmt.Errorf("%w: %s", ErrVariantNotFound, id)
	}
	return id, nil
}

func (r Resolver) bonus(s State) int {
	if int(s) < len(r.Bonus) {
		return r.Bonus[s]
	}
	return 0
}

// roundToTen rounds half away from zero.
func roundToTen(v int) int {
	if v < 0 {
		return -roundToTen(-v)
	}
	return (v + 5) / 10 * 10
}
