package analysis

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"radar/internal/analysis/visual"
	"radar/internal/diff"
	"radar/internal/observation"
	"radar/internal/report"
	"radar/internal/snapshot"
	"radar/internal/store/gormstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockArchive struct{ mock.Mock }

func (m *mockArchive) Save(ctx context.Context, kind string, params map[string]string, summary string, payload any) (string, error) {
	args := m.Called(ctx, kind, params, summary, payload)
	return args.String(0), args.Error(1)
}

func day(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

func row(d int, product, competitor, price string, stock, units int64) observation.Observation {
	return observation.Observation{
		Date: day(d), ProductID: product, Competitor: competitor, Brand: "Natura", Title: "t" + product,
		Price: decimal.RequireFromString(price), Stock: stock, UnitsSold: units,
	}
}

func newService(t *testing.T, archive Archiver, rows ...observation.Observation) *Service {
	t.Helper()
	s, err := gormstore.Open(filepath.Join(t.TempDir(), "radar.db"), gormstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	if len(rows) > 0 {
		_, err = s.Append(context.Background(), rows)
		require.NoError(t, err)
	}
	return NewService(snapshot.NewIndex(s), diff.NewEngine(s, diff.Options{}), report.NewEngine(s, nil, report.Options{}), archive)
}

func TestRunEmptyStoreIsNotAnError(t *testing.T) {
	svc := newService(t, nil)
	for _, kind := range []string{KindDiff, KindRevenueBrands, KindBuyBox, KindReorder} {
		out, err := svc.Run(context.Background(), kind, Params{})
		require.NoError(t, err, kind)
		assert.True(t, out.Empty, kind)
		assert.Equal(t, snapshot.ErrNoSnapshots.Error(), out.Summary)
	}
}

func TestRunDiffDefaultsToLatestPairAndArchives(t *testing.T) {
	archive := &mockArchive{}
	archive.On("Save", mock.Anything, KindDiff, mock.MatchedBy(func(p map[string]string) bool {
		return p["current"] == "2026-03-14" && p["baseline"] == "2026-03-13"
	}), mock.Anything, mock.Anything).Return("abc", nil).Once()

	svc := newService(t, archive,
		row(13, "1", "A", "100", 5, 1),
		row(14, "1", "A", "110", 0, 3),
	)
	out, err := svc.Run(context.Background(), KindDiff, Params{})
	require.NoError(t, err)
	assert.False(t, out.Empty)
	assert.Equal(t, "abc", out.ArchiveID)
	assert.Len(t, out.Tables, 6)
	res := out.Data.(*diff.Result)
	assert.Equal(t, 1, res.Summary.Increased)
	assert.Equal(t, 1, res.Summary.Stockouts)
	archive.AssertExpectations(t)
}

func TestRunDiffSingleView(t *testing.T) {
	svc := newService(t, nil, row(13, "1", "A", "100", 5, 1), row(14, "1", "A", "90", 5, 1))
	out, err := svc.Run(context.Background(), KindDiff, Params{View: diff.ViewPriceChanges})
	require.NoError(t, err)
	require.Len(t, out.Tables, 1)
	assert.Equal(t, diff.ViewPriceChanges, out.Tables[0].Name)

	_, err = svc.Run(context.Background(), KindDiff, Params{View: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestRunReportsUseLatestSnapshot(t *testing.T) {
	svc := newService(t, nil,
		row(13, "1", "A", "100", 5, 1),
		row(14, "1", "A", "50", 5, 2),
		row(14, "1", "B", "45", 5, 2),
	)
	ctx := context.Background()

	brands, err := svc.Run(ctx, KindRevenueBrands, Params{})
	require.NoError(t, err)
	rows := brands.Data.([]report.BrandRevenue)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Revenue.Equal(decimal.NewFromInt(190)))

	bb, err := svc.Run(ctx, KindBuyBox, Params{})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", bb.Params["date"])

	series, err := svc.Run(ctx, KindRevenueCompetitors, Params{})
	require.NoError(t, err)
	assert.Len(t, series.Data.([]report.CompetitorRevenue), 3)

	re, err := svc.Run(ctx, KindReorder, Params{WindowDays: 7})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", re.Params["as_of"])
}

func TestRunPriceHistoryNeedsProduct(t *testing.T) {
	svc := newService(t, nil, row(13, "1", "A", "100", 5, 1))
	_, err := svc.Run(context.Background(), KindPriceHistory, Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	out, err := svc.Run(context.Background(), KindPriceHistory, Params{ProductID: "1"})
	require.NoError(t, err)
	assert.Len(t, out.Data.([]report.PricePoint), 1)
}

func TestRunUnknownKind(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Run(context.Background(), "weather", Params{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.False(t, IsKind("weather"))
	assert.True(t, IsKind(KindBuyBox))
}

func TestChartBuildsHTML(t *testing.T) {
	svc := newService(t, nil, row(13, "1", "A", "100", 5, 1), row(14, "1", "A", "110", 5, 1))
	for _, name := range Charts {
		c, err := svc.Chart(context.Background(), name, Params{ProductID: "1"})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name)
		assert.NotEmpty(t, c.HTML)
	}
	_, err := svc.Chart(context.Background(), "pie", Params{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, Charts, visual.ChartReorder)
}

func TestParamsValues(t *testing.T) {
	v := Params{Date: day(14), Competitors: []string{" loja b", "LOJA A"}, WindowDays: 30}.Values()
	assert.Equal(t, "2026-03-14", v["date"])
	assert.Equal(t, "30", v["window_days"])
	assert.NotContains(t, v, "product_id")
	assert.Contains(t, v["competitor"], ",")
}
