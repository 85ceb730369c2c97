package dashboardhttp

import (
	"strconv"
	"strings"
	"time"

	"radar/internal/analysis"
	"radar/internal/observation"

	"github.com/gin-gonic/gin"
)

// parseParams reads the shared query parameters. Competitors may repeat or be
// comma separated.
func parseParams(c *gin.Context) (analysis.Params, error) {
	var p analysis.Params
	days := []struct {
		key    string
		target *time.Time
	}{
		{"current", &p.Current},
		{"baseline", &p.Baseline},
		{"date", &p.Date},
		{"from", &p.From},
		{"to", &p.To},
		{"as_of", &p.AsOf},
	}
	for _, d := range days {
		raw := strings.TrimSpace(c.Query(d.key))
		if raw == "" {
			continue
		}
		t, err := observation.ParseDay(raw)
		if err != nil {
			return p, invalid("%s: %v", d.key, err)
		}
		*d.target = t
	}
	for _, v := range c.QueryArray("competitor") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				p.Competitors = append(p.Competitors, name)
			}
		}
	}
	p.ProductID = strings.TrimSpace(c.Query("product_id"))
	p.View = strings.TrimSpace(c.Query("view"))
	ints := []struct {
		key    string
		target *int
	}{
		{"window", &p.WindowDays},
		{"sma", &p.SMAWindow},
	}
	for _, n := range ints {
		raw := strings.TrimSpace(c.Query(n.key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return p, invalid("%s must be a positive integer", n.key)
		}
		*n.target = v
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return p, invalid("from must not be after to")
	}
	return p, nil
}
