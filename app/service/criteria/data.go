package criteria

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Field names match the JSON keys the extraction model uses.
type Field string

const (
	FieldBodyStyle         Field = "body_style"
	FieldBrand             Field = "brand"
	FieldFuelType          Field = "fuel_type"
	FieldTransmission      Field = "transmission"
	FieldDrive             Field = "drive"
	FieldSeats             Field = "seats"
	FieldPriceFrom         Field = "price_from"
	FieldPriceTo           Field = "price_to"
	FieldYearFrom          Field = "year_from"
	FieldYearTo            Field = "year_to"
	FieldPowerFrom         Field = "power_from"
	FieldPowerTo           Field = "power_to"
	FieldFuelConsumptionTo Field = "fuel_consumption_to"
	FieldSort              Field = "sort"
)

var AllFields = []Field{
	FieldBodyStyle, FieldBrand, FieldFuelType, FieldTransmission, FieldDrive,
	FieldSeats, FieldPriceFrom, FieldPriceTo, FieldYearFrom, FieldYearTo,
	FieldPowerFrom, FieldPowerTo, FieldFuelConsumptionTo, FieldSort,
}

type patchState int

const (
	patchAbsent patchState = iota
	patchSet
	patchClear
)

// Patch is a three-way field update: absent (not mentioned, leave as is),
// set (replace the value) or clear (the user removed this constraint).
// On the wire a missing key is absent, null is clear, anything else is set.
type Patch[T any] struct {
	state patchState
	value T
}

func Set[T any](v T) Patch[T] {
	return Patch[T]{state: patchSet, value: v}
}

func Clear[T any]() Patch[T] {
	return Patch[T]{state: patchClear}
}

func (p Patch[T]) IsAbsent() bool { return p.state == patchAbsent }
func (p Patch[T]) IsSet() bool    { return p.state == patchSet }
func (p Patch[T]) IsClear() bool  { return p.state == patchClear }

func (p Patch[T]) Value() (T, bool) {
	return p.value, p.state == patchSet
}

func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Patch[T]{state: patchClear}
		return nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*p = Patch[T]{state: patchSet, value: v}
	return nil
}

func (p Patch[T]) MarshalJSON() ([]byte, error) {
	if p.state != patchSet {
		return []byte("null"), nil
	}

	return json.Marshal(p.value)
}

// Extraction is one model call's partial reading of the latest user message.
type Extraction struct {
	BodyStyle         Patch[string]  `json:"body_style"`
	Brand             Patch[string]  `json:"brand"`
	FuelType          Patch[string]  `json:"fuel_type"`
	Transmission      Patch[string]  `json:"transmission"`
	Drive             Patch[string]  `json:"drive"`
	Seats             Patch[int]     `json:"seats"`
	PriceFrom         Patch[int64]   `json:"price_from"`
	PriceTo           Patch[int64]   `json:"price_to"`
	YearFrom          Patch[int]     `json:"year_from"`
	YearTo            Patch[int]     `json:"year_to"`
	PowerFrom         Patch[int]     `json:"power_from"`
	PowerTo           Patch[int]     `json:"power_to"`
	FuelConsumptionTo Patch[float64] `json:"fuel_consumption_to"`
	Sort              Patch[string]  `json:"sort"`

	// The user asked to just see something, skip further clarification
	ShowAnything bool `json:"show_anything"`
}

// Empty reports whether the extraction touches no field at all.
func (e Extraction) Empty() bool {
	return e.BodyStyle.IsAbsent() && e.Brand.IsAbsent() && e.FuelType.IsAbsent() &&
		e.Transmission.IsAbsent() && e.Drive.IsAbsent() && e.Seats.IsAbsent() &&
		e.PriceFrom.IsAbsent() && e.PriceTo.IsAbsent() &&
		e.YearFrom.IsAbsent() && e.YearTo.IsAbsent() &&
		e.PowerFrom.IsAbsent() && e.PowerTo.IsAbsent() &&
		e.FuelConsumptionTo.IsAbsent() && e.Sort.IsAbsent() &&
		!e.ShowAnything
}

// Criteria is the accumulated structured intent. Nil means unset.
type Criteria struct {
	BodyStyle         *string  `json:"body_style,omitempty"`
	Brand             *string  `json:"brand,omitempty"`
	FuelType          *string  `json:"fuel_type,omitempty"`
	Transmission      *string  `json:"transmission,omitempty"`
	Drive             *string  `json:"drive,omitempty"`
	Seats             *int     `json:"seats,omitempty"`
	PriceFrom         *int64   `json:"price_from,omitempty"`
	PriceTo           *int64   `json:"price_to,omitempty"`
	YearFrom          *int     `json:"year_from,omitempty"`
	YearTo            *int     `json:"year_to,omitempty"`
	PowerFrom         *int     `json:"power_from,omitempty"`
	PowerTo           *int     `json:"power_to,omitempty"`
	FuelConsumptionTo *float64 `json:"fuel_consumption_to,omitempty"`
	Sort              *string  `json:"sort,omitempty"`
}

// Has reports whether the named field is set.
func (c Criteria) Has(f Field) bool {
	switch f {
	case FieldBodyStyle:
		return c.BodyStyle != nil
	case FieldBrand:
		return c.Brand != nil
	case FieldFuelType:
		return c.FuelType != nil
	case FieldTransmission:
		return c.Transmission != nil
	case FieldDrive:
		return c.Drive != nil
	case FieldSeats:
		return c.Seats != nil
	case FieldPriceFrom:
		return c.PriceFrom != nil
	case FieldPriceTo:
		return c.PriceTo != nil
	case FieldYearFrom:
		return c.YearFrom != nil
	case FieldYearTo:
		return c.YearTo != nil
	case FieldPowerFrom:
		return c.PowerFrom != nil
	case FieldPowerTo:
		return c.PowerTo != nil
	case FieldFuelConsumptionTo:
		return c.FuelConsumptionTo != nil
	case FieldSort:
		return c.Sort != nil
	}

	return false
}

// Empty reports whether no field is set.
func (c Criteria) Empty() bool {
	for _, f := range AllFields {
		if c.Has(f) {
			return false
		}
	}

	return true
}

// Intent is the per-chat accumulated state. Version advances only through
// the store's compare-and-swap commit, one increment per successful turn.
type Intent struct {
	ChatID          uuid.UUID `json:"chat_id"`
	Criteria        Criteria  `json:"criteria"`
	Version         int64     `json:"version"`
	ClarifyingTurns int       `json:"clarifying_turns"`
}
