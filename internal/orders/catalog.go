package orders

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// CatalogEntry is a menu item the arrival generator can draw from.
type CatalogEntry struct {
	Name       string
	Complexity Complexity
	UnitPrice  decimal.Decimal
}

// DefaultCatalog is the stock menu used when a scenario does not supply
// its own item catalog.
func DefaultCatalog() []CatalogEntry {
	price := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}
	return []CatalogEntry{
		{Name: "Domestic Beer", Complexity: ComplexitySimple, UnitPrice: price("6.50")},
		{Name: "Craft Beer", Complexity: ComplexitySimple, UnitPrice: price("8.00")},
		{Name: "Bottled Water", Complexity: ComplexitySimple, UnitPrice: price("3.00")},
		{Name: "Sports Drink", Complexity: ComplexitySimple, UnitPrice: price("4.50")},
		{Name: "Hot Dog", Complexity: ComplexityMedium, UnitPrice: price("7.00")},
		{Name: "Turkey Club", Complexity: ComplexityMedium, UnitPrice: price("12.50")},
		{Name: "Chicken Wrap", Complexity: ComplexityMedium, UnitPrice: price("11.00")},
		{Name: "Nachos", Complexity: ComplexityMedium, UnitPrice: price("9.50")},
		{Name: "Cheeseburger Basket", Complexity: ComplexityComplex, UnitPrice: price("15.00")},
		{Name: "Fish Tacos", Complexity: ComplexityComplex, UnitPrice: price("16.50")},
		{Name: "Cobb Salad", Complexity: ComplexityComplex, UnitPrice: price("14.00")},
	}
}

// RandomItems draws one to three catalog lines with quantities 1-3 from
// the supplied RNG. Deterministic given the RNG state.
func RandomItems(catalog []CatalogEntry, rng *rand.Rand) []Item {
	n := 1 + rng.Intn(3)
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		entry := catalog[rng.Intn(len(catalog))]
		items = append(items, Item{
			Name:       entry.Name,
			Quantity:   1 + rng.Intn(3),
			Complexity: entry.Complexity,
			UnitPrice:  entry.UnitPrice,
		})
	}
	return items
}
