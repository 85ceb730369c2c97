// Package ingest turns uploaded marketplace exports into stored observations.
package ingest

import (
	"path/filepath"
	"strings"
)

// Columns maps spreadsheet headers to observation fields. Matching is exact
// and case-sensitive after trimming.
type Columns struct {
	Price     string `mapstructure:"price" toml:"price"`
	Stock     string `mapstructure:"stock" toml:"stock"`
	UnitsSold string `mapstructure:"units_sold" toml:"units_sold"`
	Title     string `mapstructure:"title" toml:"title"`
	ProductID string `mapstructure:"product_id" toml:"product_id"`
	Brand     string `mapstructure:"brand" toml:"brand"`
	SKU       string `mapstructure:"sku" toml:"sku"`
}

// DefaultColumns are the headers of the marketplace export.
func DefaultColumns() Columns {
	return Columns{
		Price:     "Preço Médio",
		Stock:     "Estoque",
		UnitsSold: "Vendas em Unid.",
		Title:     "Título",
		ProductID: "GTIN",
		Brand:     "Marca",
		SKU:       "SKU",
	}
}

// withDefaults fills empty names from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return strings.TrimSpace(v)
	}
	return Columns{
		Price:     pick(c.Price, d.Price),
		Stock:     pick(c.Stock, d.Stock),
		UnitsSold: pick(c.UnitsSold, d.UnitsSold),
		Title:     pick(c.Title, d.Title),
		ProductID: pick(c.ProductID, d.ProductID),
		Brand:     pick(c.Brand, d.Brand),
		SKU:       pick(c.SKU, d.SKU),
	}
}

// DefaultFilenamePrefixes are stripped from export filenames.
var DefaultFilenamePrefixes = []string{"PERFUMES_"}

// CompetitorFromFilename derives a competitor name from an export filename:
// the extension and a known prefix are dropped and the name is cut at " - ".
// The result is not normalized.
func CompetitorFromFilename(name string, prefixes []string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(base, p) {
			base = strings.TrimPrefix(base, p)
			break
		}
	}
	if head, _, ok := strings.Cut(base, " - "); ok {
		base = head
	}
	return strings.TrimSpace(base)
}
