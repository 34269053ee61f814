package criteria

import (
	"fmt"
	"strconv"
	"strings"
)

// Summary renders the set fields as a compact one-line description. It is
// what the extraction model sees instead of the full message history, so it
// stays bounded regardless of conversation length.
func (c Criteria) Summary() string {
	if c.Empty() {
		return "no criteria yet"
	}

	var parts []string

	add := func(f Field, v string) {
		parts = append(parts, string(f)+"="+v)
	}

	if c.BodyStyle != nil {
		add(FieldBodyStyle, *c.BodyStyle)
	}
	if c.Brand != nil {
		add(FieldBrand, *c.Brand)
	}
	if c.FuelType != nil {
		add(FieldFuelType, *c.FuelType)
	}
	if c.Transmission != nil {
		add(FieldTransmission, *c.Transmission)
	}
	if c.Drive != nil {
		add(FieldDrive, *c.Drive)
	}
	if c.Seats != nil {
		add(FieldSeats, strconv.Itoa(*c.Seats))
	}
	if c.PriceFrom != nil {
		add(FieldPriceFrom, strconv.FormatInt(*c.PriceFrom, 10))
	}
	if c.PriceTo != nil {
		add(FieldPriceTo, strconv.FormatInt(*c.PriceTo, 10))
	}
	if c.YearFrom != nil {
		add(FieldYearFrom, strconv.Itoa(*c.YearFrom))
	}
	if c.YearTo != nil {
		add(FieldYearTo, strconv.Itoa(*c.YearTo))
	}
	if c.PowerFrom != nil {
		add(FieldPowerFrom, strconv.Itoa(*c.PowerFrom))
	}
	if c.PowerTo != nil {
		add(FieldPowerTo, strconv.Itoa(*c.PowerTo))
	}
	if c.FuelConsumptionTo != nil {
		add(FieldFuelConsumptionTo, strconv.FormatFloat(*c.FuelConsumptionTo, 'f', 1, 64))
	}
	if c.Sort != nil {
		add(FieldSort, *c.Sort)
	}

	return strings.Join(parts, ", ")
}

// Diff lists the fields whose value changed between two criteria snapshots,
// rendered as "field: old -> new". Used as the minimal payload for the reply
// composer instead of raw history.
func Diff(old, cur Criteria) []string {
	var out []string

	diffField(&out, FieldBodyStyle, old.BodyStyle, cur.BodyStyle)
	diffField(&out, FieldBrand, old.Brand, cur.Brand)
	diffField(&out, FieldFuelType, old.FuelType, cur.FuelType)
	diffField(&out, FieldTransmission, old.Transmission, cur.Transmission)
	diffField(&out, FieldDrive, old.Drive, cur.Drive)
	diffField(&out, FieldSeats, old.Seats, cur.Seats)
	diffField(&out, FieldPriceFrom, old.PriceFrom, cur.PriceFrom)
	diffField(&out, FieldPriceTo, old.PriceTo, cur.PriceTo)
	diffField(&out, FieldYearFrom, old.YearFrom, cur.YearFrom)
	diffField(&out, FieldYearTo, old.YearTo, cur.YearTo)
	diffField(&out, FieldPowerFrom, old.PowerFrom, cur.PowerFrom)
	diffField(&out, FieldPowerTo, old.PowerTo, cur.PowerTo)
	diffField(&out, FieldFuelConsumptionTo, old.FuelConsumptionTo, cur.FuelConsumptionTo)
	diffField(&out, FieldSort, old.Sort, cur.Sort)

	return out
}

func diffField[T comparable](out *[]string, f Field, old, cur *T) {
	switch {
	case old == nil && cur == nil:
	case old == nil:
		*out = append(*out, fmt.Sprintf("%s: unset -> %v", f, *cur))
	case cur == nil:
		*out = append(*out, fmt.Sprintf("%s: %v -> unset", f, *old))
	case *old != *cur:
		*out = append(*out, fmt.Sprintf("%s: %v -> %v", f, *old, *cur))
	}
}
