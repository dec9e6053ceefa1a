package scoring

import "math"

// Band maps a half-open value range [Min, Max) to a fraction of a dimension's weight.
// IncludeMax closes the range on the right.
type Band struct {
	Min        float64
	Max        float64
	IncludeMax bool
	Fraction   float64 // 0..1 of the dimension weight
	Reject     bool    // a value in this band short-circuits the whole score
	Label      string
}

// Contains reports whether v falls in the band.
func (b Band) Contains(v float64) bool {
	if v < b.Min {
		return false
	}
	if b.IncludeMax {
		return v <= b.Max
	}
	return v < b.Max
}

// Table is an ordered list of bands. The first matching band wins.
type Table struct {
	Name  string
	Bands []Band
}

// Lookup returns the first band containing v.
// NaN and values outside every band return false.
func (t Table) Lookup(v float64) (Band, bool) {
	if math.IsNaN(v) {
		return Band{}, false
	}
	for _, b := range t.Bands {
		if b.Contains(v) {
			return b, true
		}
	}
	return Band{}, false
}

var inf = math.Inf(1)

// LiquidityTable builds the liquidity range table from cfg.
func LiquidityTable(cfg Config) Table {
	return Table{
		Name: "liquidity",
		Bands: []Band{
			{Min: cfg.OptimalLiquidityMin, Max: cfg.OptimalLiquidityMax, IncludeMax: true, Fraction: 1.0, Label: "optimal liquidity"},
			{Min: cfg.MinLiquidity, Max: cfg.OptimalLiquidityMin, Fraction: 0.7, Label: "liquidity below optimal"},
			{Min: cfg.OptimalLiquidityMax, Max: cfg.MaxLiquidity, IncludeMax: true, Fraction: 0.6, Label: "liquidity above optimal"},
			{Min: cfg.MaxLiquidity, Max: inf, IncludeMax: true, Reject: true, Label: "liquidity above maximum"},
			{Min: -inf, Max: cfg.MinLiquidity, Reject: true, Label: "liquidity below minimum"},
		},
	}
}

// MarketCapTable builds the market cap range table from cfg.
func MarketCapTable(cfg Config) Table {
	return Table{
		Name: "market_cap",
		Bands: []Band{
			{Min: cfg.MarketCapMin, Max: cfg.MarketCapMax, IncludeMax: true, Fraction: 1.0, Label: "market cap in range"},
			{Min: cfg.MarketCapMax, Max: cfg.MarketCapUpperLimit, IncludeMax: true, Fraction: 0.6, Label: "market cap above range"},
			{Min: 0, Max: cfg.MarketCapMin, Fraction: 0.4, Label: "market cap below range"},
			{Min: cfg.MarketCapUpperLimit, Max: inf, IncludeMax: true, Fraction: 0, Label: "market cap above upper limit"},
		},
	}
}

// HolderTable builds the top-holder concentration table from cfg.
func HolderTable(cfg Config) Table {
	return Table{
		Name: "holders",
		Bands: []Band{
			{Min: 0, Max: 0.30, Fraction: 1.0, Label: "well distributed"},
			{Min: 0.30, Max: 0.50, Fraction: 2.0 / 3.0, Label: "moderately concentrated"},
			{Min: 0.50, Max: cfg.MaxTopHolder, IncludeMax: true, Fraction: 1.0 / 3.0, Label: "highly concentrated"},
			{Min: cfg.MaxTopHolder, Max: inf, IncludeMax: true, Reject: true, Label: "top holder above ceiling"},
		},
	}
}
