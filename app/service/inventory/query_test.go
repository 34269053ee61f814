package inventory

import (
	"testing"

	"carscout/app/service/criteria"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func int64Ptr(i int64) *int64     { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestBuildSpecEmptyCriteria(t *testing.T) {
	spec := BuildSpec(criteria.Criteria{}, 5, HardResultCap)

	assert.Empty(t, spec.Predicates)
	assert.Equal(t, 5, spec.Limit)
	assert.Equal(t, SortKey{Column: "price"}, spec.Sort)
}

func TestBuildSpecOnePredicatePerSetField(t *testing.T) {
	c := criteria.Criteria{
		BodyStyle: strPtr("suv"),
		Brand:     strPtr("Toyota"),
		Seats:     intPtr(7),
		PriceFrom: int64Ptr(1000000),
		PriceTo:   int64Ptr(3000000),
	}

	spec := BuildSpec(c, 5, HardResultCap)

	require.Len(t, spec.Predicates, 5)

	assert.Contains(t, spec.Predicates, Predicate{Column: "body_style", Op: OpEq, Value: "suv"})
	assert.Contains(t, spec.Predicates, Predicate{Column: "brand", Op: OpILike, Value: "Toyota"})
	assert.Contains(t, spec.Predicates, Predicate{Column: "seats", Op: OpEq, Value: 7})
	assert.Contains(t, spec.Predicates, Predicate{Column: "price", Op: OpGte, Value: int64(1000000)})
	assert.Contains(t, spec.Predicates, Predicate{Column: "price", Op: OpLte, Value: int64(3000000)})
}

func TestBuildSpecSingleBound(t *testing.T) {
	spec := BuildSpec(criteria.Criteria{FuelConsumptionTo: floatPtr(7.5)}, 5, HardResultCap)

	require.Len(t, spec.Predicates, 1)
	assert.Equal(t, Predicate{Column: "fuel_consumption", Op: OpLte, Value: 7.5}, spec.Predicates[0])
}

func TestBuildSpecCapClamped(t *testing.T) {
	cases := []struct {
		name       string
		limit      int
		maxResults int
		expected   int
	}{
		{"zero defaults to cap", 0, HardResultCap, HardResultCap},
		{"negative defaults to cap", -1, HardResultCap, HardResultCap},
		{"within cap honored", 5, HardResultCap, 5},
		{"at cap honored", HardResultCap, HardResultCap, HardResultCap},
		{"above cap clamped", HardResultCap * 10, HardResultCap, HardResultCap},
		{"configured ceiling above default honored", 50, 50, 50},
		{"configured ceiling clamps", 10, 3, 3},
		{"zero limit defaults to configured ceiling", 0, 8, 8},
		{"unset ceiling falls back", 50, 0, HardResultCap},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := BuildSpec(criteria.Criteria{}, tc.limit, tc.maxResults)
			assert.Equal(t, tc.expected, spec.Limit)
		})
	}
}

func TestBuildSpecSort(t *testing.T) {
	assert.Equal(t, SortKey{Column: "price"},
		BuildSpec(criteria.Criteria{}, 5, HardResultCap).Sort)

	assert.Equal(t, SortKey{Column: "year", Desc: true},
		BuildSpec(criteria.Criteria{Sort: strPtr("newest")}, 5, HardResultCap).Sort)

	assert.Equal(t, SortKey{Column: "price", Desc: true},
		BuildSpec(criteria.Criteria{Sort: strPtr("price_desc")}, 5, HardResultCap).Sort)

	// unknown sort falls back to price ascending
	assert.Equal(t, SortKey{Column: "price"},
		BuildSpec(criteria.Criteria{Sort: strPtr("cheapest")}, 5, HardResultCap).Sort)
}

func TestBuildWhere(t *testing.T) {
	spec := BuildSpec(criteria.Criteria{
		Brand:   strPtr("Toyota"),
		PriceTo: int64Ptr(3000000),
	}, 5, HardResultCap)

	where, args := buildWhere(spec)

	assert.Equal(t, "WHERE 1=1 AND brand ILIKE $1 AND price <= $2", where)
	assert.Equal(t, []any{"%Toyota%", int64(3000000)}, args)
}

func TestPromptLines(t *testing.T) {
	empty := &SearchResult{Items: []Car{}}
	assert.Equal(t, "no matches", empty.PromptLines())

	r := &SearchResult{
		Items: []Car{{
			Brand: "Toyota", Model: "RAV4", Year: 2021, BodyStyle: "suv",
			Seats: 5, PowerHP: 149, FuelConsumption: 6.5, Price: 2500000,
		}},
		TotalCount: 1,
	}

	assert.Equal(t,
		"Toyota RAV4 (2021, suv, 5 seats, 149 hp, 6.5 l/100km) - 2500000",
		r.PromptLines())
}
