package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"radar/internal/logger"
	"radar/internal/observation"
	"radar/internal/store"
	"radar/internal/store/ledger"

	"github.com/google/uuid"
)

// ErrNoCompetitor means neither the caller nor the filename named a competitor.
var ErrNoCompetitor = errors.New("competitor could not be determined")

// Recorder persists upload outcomes.
type Recorder interface {
	Record(ctx context.Context, rec ledger.Record) error
}

type Options struct {
	Columns          Columns
	FilenamePrefixes []string
	TitleMax         int
	Policy           store.DuplicatePolicy
}

// Upload is one file plus the snapshot it belongs to. An empty Competitor is
// derived from Filename.
type Upload struct {
	Filename   string
	Reader     io.Reader
	Date       time.Time
	Competitor string
}

// Report summarizes one ingestion.
type Report struct {
	BatchID    string                `json:"batch_id"`
	Filename   string                `json:"filename"`
	Competitor string                `json:"competitor"`
	Date       time.Time             `json:"observation_date"`
	Rows       int                   `json:"rows"`
	Written    int                   `json:"written"`
	Skipped    int                   `json:"skipped"`
	Warnings   []observation.Warning `json:"warnings"`
	Status     ledger.Status         `json:"status"`
}

type Service struct {
	store    store.Store
	recorder Recorder
	parser   Parser
	norm     observation.Normalizer
	opts     Options
	newID    func() string
}

// NewService wires ingestion. recorder may be nil.
func NewService(s store.Store, recorder Recorder, opts Options) *Service {
	if opts.FilenamePrefixes == nil {
		opts.FilenamePrefixes = DefaultFilenamePrefixes
	}
	if opts.Policy == "" {
		opts.Policy = store.DuplicateReplace
	}
	return &Service{
		store:    s,
		recorder: recorder,
		parser:   Parser{Columns: opts.Columns},
		norm:     observation.Normalizer{TitleMax: opts.TitleMax},
		opts:     opts,
		newID:    uuid.NewString,
	}
}

// Ingest parses, normalizes and appends one upload, then records the outcome.
// A *store.PartialWriteError is returned together with a partial Report.
func (s *Service) Ingest(ctx context.Context, up Upload) (Report, error) {
	rep := Report{
		BatchID:  s.newID(),
		Filename: strings.TrimSpace(up.Filename),
		Date:     observation.Day(up.Date),
		Status:   ledger.StatusFailed,
	}
	competitor := up.Competitor
	if strings.TrimSpace(competitor) == "" {
		competitor = CompetitorFromFilename(up.Filename, s.opts.FilenamePrefixes)
	}
	rep.Competitor = observation.NormalizeCompetitor(competitor)

	err := s.ingest(ctx, up, &rep)
	s.record(ctx, rep, err)
	return rep, err
}

func (s *Service) ingest(ctx context.Context, up Upload, rep *Report) error {
	if rep.Date.IsZero() {
		return fmt.Errorf("upload %s: %w: observation date required", rep.Filename, ErrInvalidUpload)
	}
	if rep.Competitor == "" {
		return fmt.Errorf("upload %s: %w: %w", rep.Filename, ErrInvalidUpload, ErrNoCompetitor)
	}
	if up.Reader == nil {
		return fmt.Errorf("upload %s: %w: empty body", rep.Filename, ErrInvalidUpload)
	}
	raws, err := s.parser.ParseFile(up.Filename, up.Reader)
	if err != nil {
		return err
	}
	rep.Rows = len(raws)

	obs, warns, skipped := s.prepare(raws, rep.Date, rep.Competitor)
	rep.Warnings = warns
	rep.Skipped = skipped
	if len(obs) == 0 {
		rep.Status = ledger.StatusOK
		logger.Warnf("upload %s: no usable rows (%d parsed)", rep.Filename, rep.Rows)
		return nil
	}

	if s.opts.Policy == store.DuplicateReject {
		n, err := s.store.Count(ctx, store.ForDates(rep.Date).WithCompetitors(rep.Competitor))
		if err != nil {
			return fmt.Errorf("check existing snapshot: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%s on %s has %d rows: %w", rep.Competitor, observation.FormatDay(rep.Date), n, store.ErrSnapshotExists)
		}
	}

	written, err := s.store.Append(ctx, obs)
	rep.Written = written
	var partial *store.PartialWriteError
	switch {
	case errors.As(err, &partial):
		rep.Status = ledger.StatusPartial
		return err
	case err != nil:
		return err
	}
	rep.Status = ledger.StatusOK
	logger.Infof("upload %s: %s %s rows=%d written=%d skipped=%d warnings=%d",
		rep.BatchID, rep.Competitor, observation.FormatDay(rep.Date), rep.Rows, rep.Written, rep.Skipped, len(rep.Warnings))
	return nil
}

// prepare normalizes rows, drops those without a product id and keeps the
// last row for ids repeated inside the upload.
func (s *Service) prepare(raws []observation.RawRow, date time.Time, competitor string) ([]observation.Observation, []observation.Warning, int) {
	var (
		out      []observation.Observation
		warns    []observation.Warning
		skipped  int
		position = map[string]int{}
		lines    = map[string]int{}
	)
	for _, raw := range raws {
		res := s.norm.Normalize(raw, date, competitor)
		warns = append(warns, res.Warnings...)
		id := res.Observation.ProductID
		if id == "" {
			skipped++
			continue
		}
		if i, dup := position[id]; dup {
			warns = append(warns, observation.Warning{
				Row:    lines[id],
				Field:  observation.FieldProductID,
				Raw:    id,
				Reason: fmt.Sprintf("duplicate in upload, superseded by row %d", raw.Line),
			})
			out[i] = res.Observation
			lines[id] = raw.Line
			skipped++
			continue
		}
		position[id] = len(out)
		lines[id] = raw.Line
		out = append(out, res.Observation)
	}
	return out, warns, skipped
}

func (s *Service) record(ctx context.Context, rep Report, err error) {
	rec := ledger.Record{
		BatchID:    rep.BatchID,
		Filename:   rep.Filename,
		Competitor: rep.Competitor,
		Date:       rep.Date,
		Rows:       rep.Rows,
		Written:    rep.Written,
		Skipped:    rep.Skipped,
		Warnings:   rep.Warnings,
		Status:     rep.Status,
	}
	if err != nil {
		rec.Error = err.Error()
		logger.Errorf("upload %s (%s) %s: %v", rep.BatchID, rep.Filename, rep.Status, err)
	}
	if s.recorder != nil {
		if rerr := s.recorder.Record(ctx, rec); rerr != nil {
			logger.Errorf("upload %s: ledger write failed: %v", rep.BatchID, rerr)
		}
	}
	if len(rep.Warnings) == 0 && err == nil {
		return
	}
	sections := []logger.AuditSection{{
		Title: "SUMMARY",
		Lines: []string{fmt.Sprintf("file=%s competitor=%s date=%s status=%s rows=%d written=%d skipped=%d",
			rep.Filename, rep.Competitor, observation.FormatDay(rep.Date), rep.Status, rep.Rows, rep.Written, rep.Skipped)},
	}}
	if len(rep.Warnings) > 0 {
		lines := make([]string, len(rep.Warnings))
		for i, w := range rep.Warnings {
			lines[i] = w.String()
		}
		sections = append(sections, logger.AuditSection{Title: "WARNINGS", Lines: lines})
	}
	if err != nil {
		sections = append(sections, logger.AuditSection{Title: "ERROR", Lines: []string{err.Error()}})
	}
	logger.Audit("upload", rep.BatchID, sections...)
}
