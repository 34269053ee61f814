package inventory

import (
	"fmt"
	"strings"

	"github.com/elliotchance/pie/v2"
)

type Car struct {
	ID              int64   `db:"id" json:"id"`
	Brand           string  `db:"brand" json:"brand"`
	Model           string  `db:"model" json:"model"`
	BodyStyle       string  `db:"body_style" json:"body_style"`
	Price           int64   `db:"price" json:"price"`
	Year            int     `db:"year" json:"year"`
	Seats           int     `db:"seats" json:"seats"`
	Transmission    string  `db:"transmission" json:"transmission"`
	Drive           string  `db:"drive" json:"drive"`
	FuelType        string  `db:"fuel_type" json:"fuel_type"`
	PowerHP         int     `db:"power_hp" json:"power_hp"`
	FuelConsumption float64 `db:"fuel_consumption" json:"fuel_consumption"`
	URL             string  `db:"url" json:"url"`
}

type SearchResult struct {
	Items      []Car `json:"items"`
	TotalCount int   `json:"total_count"`
}

// PromptLines renders the result as one line per car for the reply
// composer's payload.
func (r *SearchResult) PromptLines() string {
	if len(r.Items) == 0 {
		return "no matches"
	}

	lines := pie.Map(r.Items, func(c Car) string {
		return fmt.Sprintf("%s %s (%d, %s, %d seats, %d hp, %.1f l/100km) - %d",
			c.Brand, c.Model, c.Year, c.BodyStyle, c.Seats, c.PowerHP, c.FuelConsumption, c.Price)
	})

	return strings.Join(lines, "\n")
}
