package table

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Table {
	t := New("price_changes", "Variação de preço", Text("product_id"), Currency("price"), Percent("variation_pct"), Int("units"), Date("date"))
	t.Add("789", decimal.RequireFromString("129.9"), decimal.RequireFromString("-8.3333"), int64(12), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	return t
}

func TestFormatByKind(t *testing.T) {
	tbl := sample()
	assert.Equal(t, []string{"789", "129.90", "-8.33", "12", "2026-03-14"}, tbl.Strings()[0])
	assert.Equal(t, 2, tbl.Column("variation_pct"))
	assert.Equal(t, -1, tbl.Column("missing"))
	assert.Panics(t, func() { tbl.Add("only one") })
}

func TestMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(sample())
	require.NoError(t, err)
	var out struct {
		Name  string           `json:"name"`
		Rows  []map[string]any `json:"rows"`
		Empty bool             `json:"empty"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "price_changes", out.Name)
	assert.False(t, out.Empty)
	assert.Equal(t, "2026-03-14", out.Rows[0]["date"])
	assert.Equal(t, "129.9", out.Rows[0]["price"])
}

func TestRenderAlignsAndLimits(t *testing.T) {
	color.NoColor = true
	tbl := New("t", "", Text("título"), Int("n"))
	tbl.Add("Água", int64(5))
	tbl.Add("Perfume longo", int64(120))
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, tbl, RenderOptions{Limit: 1, Colors: map[string]ColorFunc{"n": SignColor}}))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "  título  n", lines[0])
	assert.Equal(t, "  ------  -", lines[1])
	assert.Equal(t, "  Água    5", lines[2])
	assert.Contains(t, lines[3], "1 more rows")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	assert.Equal(t, "product_id,price,variation_pct,units,date\n789,129.90,-8.33,12,2026-03-14\n", buf.String())
}
