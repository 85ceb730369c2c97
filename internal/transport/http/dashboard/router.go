package dashboardhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"radar/internal/analysis"
	"radar/internal/ingest"
	"radar/internal/logger"
	"radar/internal/observation"
	"radar/internal/snapshot"
	"radar/internal/store"
	"radar/internal/store/ledger"
	"radar/internal/store/reportlog"
	"radar/internal/table"

	"github.com/gin-gonic/gin"
)

// UploadLog lists past ingestions.
type UploadLog interface {
	Recent(ctx context.Context, limit int) ([]ledger.Record, error)
}

// Archive lists and fetches generated reports.
type Archive interface {
	List(ctx context.Context, q reportlog.Query) ([]reportlog.Entry, error)
	Get(ctx context.Context, id string) (reportlog.Entry, error)
}

type handlers struct {
	cfg ServerConfig
}

// reportRoutes maps URL suffixes under /api/reports to analysis kinds.
var reportRoutes = map[string]string{
	"revenue/brands":      analysis.KindRevenueBrands,
	"revenue/competitors": analysis.KindRevenueCompetitors,
	"buybox":              analysis.KindBuyBox,
	"reorder":             analysis.KindReorder,
	"history":             analysis.KindPriceHistory,
}

func (h *handlers) registerAPI(group *gin.RouterGroup) {
	group.POST("/uploads", h.handleUpload)
	group.GET("/uploads", h.handleUploads)
	group.GET("/snapshots/dates", h.handleDates)
	group.GET("/snapshots/competitors", h.handleCompetitors)
	group.GET("/snapshots/selection", h.handleSelection)
	group.GET("/diff", h.handleKind(analysis.KindDiff))
	for path, kind := range reportRoutes {
		group.GET("/reports/"+path, h.handleKind(kind))
	}
	group.GET("/archive", h.handleArchiveList)
	group.GET("/archive/:id", h.handleArchiveEntry)
}

// badRequest marks client input errors.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

// writeError maps domain errors onto status codes.
func writeError(c *gin.Context, err error, extra gin.H) {
	status := http.StatusInternalServerError
	var br badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, ingest.ErrInvalidUpload),
		errors.Is(err, analysis.ErrInvalidParams):
		status = http.StatusBadRequest
	case errors.Is(err, analysis.ErrUnknownKind),
		errors.Is(err, reportlog.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrSnapshotExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("[api] %s %s failed status=%d err=%v", c.Request.Method, c.Request.URL.Path, status, err)
	} else {
		logger.Warnf("[api] %s %s rejected status=%d err=%v", c.Request.Method, c.Request.URL.Path, status, err)
	}
	c.JSON(status, body)
}

func (h *handlers) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		writeError(c, invalid("multipart field \"file\" is required"), nil)
		return
	}
	date, err := observation.ParseDay(c.PostForm("date"))
	if err != nil {
		writeError(c, invalid("date: %v", err), nil)
		return
	}
	f, err := file.Open()
	if err != nil {
		writeError(c, err, nil)
		return
	}
	defer f.Close()

	rep, err := h.cfg.Ingest.Ingest(c.Request.Context(), ingest.Upload{
		Filename:   file.Filename,
		Reader:     f,
		Date:       date,
		Competitor: c.PostForm("competitor"),
	})
	if err != nil {
		writeError(c, err, gin.H{"report": rep})
		return
	}
	logger.Infof("[api] upload %s ip=%s competitor=%s written=%d", rep.BatchID, c.ClientIP(), rep.Competitor, rep.Written)
	c.JSON(http.StatusCreated, rep)
}

func (h *handlers) handleUploads(c *gin.Context) {
	if h.cfg.Uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload ledger disabled"})
		return
	}
	limit := queryInt(c, "limit", 50, 500)
	recs, err := h.cfg.Uploads.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": recs, "empty": len(recs) == 0})
}

func (h *handlers) handleDates(c *gin.Context) {
	dates, err := h.cfg.Index.ListDates(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = observation.FormatDay(d)
	}
	c.JSON(http.StatusOK, gin.H{"dates": out, "empty": len(out) == 0})
}

func (h *handlers) handleCompetitors(c *gin.Context) {
	names, err := h.cfg.Index.ListCompetitors(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitors": names, "empty": len(names) == 0})
}

func (h *handlers) handleSelection(c *gin.Context) {
	sel, err := h.cfg.Index.Selection(c.Request.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshots) {
			c.JSON(http.StatusOK, gin.H{"empty": true, "message": err.Error()})
			return
		}
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current":  observation.FormatDay(sel.Current),
		"baseline": observation.FormatDay(sel.Baseline),
		"same":     sel.Same(),
		"empty":    false,
	})
}

// handleKind runs an analysis kind. ?format=csv streams the first table.
func (h *handlers) handleKind(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			writeError(c, err, nil)
			return
		}
		out, err := h.cfg.Analysis.Run(c.Request.Context(), kind, p)
		if err != nil {
			writeError(c, err, nil)
			return
		}
		if strings.EqualFold(c.Query("format"), "csv") {
			writeCSV(c, out)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func writeCSV(c *gin.Context, out *analysis.Output) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	if len(out.Tables) == 0 {
		c.Status(http.StatusOK)
		return
	}
	t := out.Tables[0]
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", t.Name+".csv"))
	c.Status(http.StatusOK)
	if err := table.WriteCSV(c.Writer, t); err != nil {
		logger.Warnf("[api] csv %s: %v", t.Name, err)
	}
}

func (h *handlers) handleArchiveList(c *gin.Context) {
	if h.cfg.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report archive disabled"})
		return
	}
	entries, err := h.cfg.Archive.List(c.Request.Context(), reportlog.Query{
		Kind:   strings.TrimSpace(c.Query("kind")),
		Limit:  queryInt(c, "limit", 50, 500),
		Offset: queryInt(c, "offset", 0, -1),
	})
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": entries, "empty": len(entries) == 0})
}

func (h *handlers) handleArchiveEntry(c *gin.Context) {
	if h.cfg.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report archive disabled"})
		return
	}
	entry, err := h.cfg.Archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// queryInt reads a non-negative integer, clamped to max when max > 0.
func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
