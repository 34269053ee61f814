package inventory

import (
	"carscout/app/service/criteria"
)

// HardResultCap bounds inventory rows per search when no ceiling is
// configured. The result set feeds a model call, so it stays small either way.
const HardResultCap = 20

type Op string

const (
	OpEq    Op = "="
	OpGte   Op = ">="
	OpLte   Op = "<="
	OpILike Op = "ILIKE"
)

type Predicate struct {
	Column string
	Op     Op
	Value  any
}

type SortKey struct {
	Column string
	Desc   bool
}

// Spec is a bounded, composable inventory query. Rebuilt per search, never
// persisted.
type Spec struct {
	Predicates []Predicate
	Limit      int
	Sort       SortKey
}

// BuildSpec translates accumulated criteria into a search specification.
// Every set field contributes exactly one predicate, unset fields none.
// Range bounds are inclusive. The limit is clamped to maxResults, falling
// back to HardResultCap when no ceiling is configured.
func BuildSpec(c criteria.Criteria, limit, maxResults int) Spec {
	if maxResults <= 0 {
		maxResults = HardResultCap
	}
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	spec := Spec{
		Limit: limit,
		Sort:  SortKey{Column: "price"},
	}

	add := func(column string, op Op, value any) {
		spec.Predicates = append(spec.Predicates, Predicate{Column: column, Op: op, Value: value})
	}

	if c.BodyStyle != nil {
		add("body_style", OpEq, *c.BodyStyle)
	}
	if c.Brand != nil {
		add("brand", OpILike, *c.Brand)
	}
	if c.FuelType != nil {
		add("fuel_type", OpEq, *c.FuelType)
	}
	if c.Transmission != nil {
		add("transmission", OpEq, *c.Transmission)
	}
	if c.Drive != nil {
		add("drive", OpEq, *c.Drive)
	}
	if c.Seats != nil {
		add("seats", OpEq, *c.Seats)
	}
	if c.PriceFrom != nil {
		add("price", OpGte, *c.PriceFrom)
	}
	if c.PriceTo != nil {
		add("price", OpLte, *c.PriceTo)
	}
	if c.YearFrom != nil {
		add("year", OpGte, *c.YearFrom)
	}
	if c.YearTo != nil {
		add("year", OpLte, *c.YearTo)
	}
	if c.PowerFrom != nil {
		add("power_hp", OpGte, *c.PowerFrom)
	}
	if c.PowerTo != nil {
		add("power_hp", OpLte, *c.PowerTo)
	}
	if c.FuelConsumptionTo != nil {
		add("fuel_consumption", OpLte, *c.FuelConsumptionTo)
	}

	if c.Sort != nil {
		switch *c.Sort {
		case "newest", "year_desc":
			spec.Sort = SortKey{Column: "year", Desc: true}
		case "price_desc":
			spec.Sort = SortKey{Column: "price", Desc: true}
		}
	}

	return spec
}
