package criteria

// Merge combines accumulated criteria with a freshly extracted update.
// Per field: set replaces, clear unsets, absent leaves the prior value
// untouched. Pure and idempotent, merging the same extraction twice is a
// no-op the second time.
func Merge(c Criteria, e Extraction) Criteria {
	out := c

	out.BodyStyle = applyPatch(out.BodyStyle, e.BodyStyle)
	out.Brand = applyPatch(out.Brand, e.Brand)
	out.FuelType = applyPatch(out.FuelType, e.FuelType)
	out.Transmission = applyPatch(out.Transmission, e.Transmission)
	out.Drive = applyPatch(out.Drive, e.Drive)
	out.Seats = applyPatch(out.Seats, e.Seats)
	out.PriceFrom = applyPatch(out.PriceFrom, e.PriceFrom)
	out.PriceTo = applyPatch(out.PriceTo, e.PriceTo)
	out.YearFrom = applyPatch(out.YearFrom, e.YearFrom)
	out.YearTo = applyPatch(out.YearTo, e.YearTo)
	out.PowerFrom = applyPatch(out.PowerFrom, e.PowerFrom)
	out.PowerTo = applyPatch(out.PowerTo, e.PowerTo)
	out.FuelConsumptionTo = applyPatch(out.FuelConsumptionTo, e.FuelConsumptionTo)
	out.Sort = applyPatch(out.Sort, e.Sort)

	out.PriceFrom, out.PriceTo = normalizeRange(out.PriceFrom, out.PriceTo)
	out.YearFrom, out.YearTo = normalizeRange(out.YearFrom, out.YearTo)
	out.PowerFrom, out.PowerTo = normalizeRange(out.PowerFrom, out.PowerTo)

	return out
}

func applyPatch[T any](cur *T, p Patch[T]) *T {
	switch {
	case p.IsSet():
		v, _ := p.Value()
		return &v
	case p.IsClear():
		return nil
	default:
		return cur
	}
}

// Inverted ranges are repaired by swapping, never rejected.
func normalizeRange[T int | int64](from, to *T) (*T, *T) {
	if from != nil && to != nil && *from > *to {
		return to, from
	}

	return from, to
}
