package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"radar/internal/observation"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrMissingColumn means the product id header was not found.
	ErrMissingColumn = errors.New("required column missing")
	// ErrEmptyFile means no header row was found.
	ErrEmptyFile = errors.New("file has no header row")
	// ErrInvalidUpload marks uploads rejected before anything is written.
	ErrInvalidUpload = errors.New("invalid upload")
)

// Parser reads uploads with a fixed column mapping.
type Parser struct {
	Columns Columns
}

// ParseFile reads a CSV/TXT or XLSX upload. Unknown extensions are tried as
// CSV first, then as XLSX.
func (p Parser) ParseFile(name string, r io.Reader) ([]observation.RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var records [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		records, err = readCSV(data)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(data)
	default:
		records, err = readCSV(data)
		if err != nil || !p.hasHeader(records) {
			if x, xerr := readXLSX(data); xerr == nil {
				records, err = x, nil
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", name, ErrInvalidUpload, err)
	}
	rows, err := p.mapRows(records)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", name, ErrInvalidUpload, err)
	}
	return rows, nil
}

func (p Parser) hasHeader(records [][]string) bool {
	_, _, err := p.header(records)
	return err == nil
}

// header finds the first non-empty row and indexes its cells.
func (p Parser) header(records [][]string) (int, map[string]int, error) {
	cols := p.Columns.withDefaults()
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		index := make(map[string]int, len(rec))
		for j, cell := range rec {
			cell = strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
			if _, dup := index[cell]; !dup {
				index[cell] = j
			}
		}
		if _, ok := index[cols.ProductID]; !ok {
			return i, nil, fmt.Errorf("%w: %q", ErrMissingColumn, cols.ProductID)
		}
		return i, index, nil
	}
	return 0, nil, ErrEmptyFile
}

func (p Parser) mapRows(records [][]string) ([]observation.RawRow, error) {
	cols := p.Columns.withDefaults()
	start, index, err := p.header(records)
	if err != nil {
		return nil, err
	}
	cell := func(rec []string, name string) string {
		j, ok := index[name]
		if !ok || j >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[j])
	}
	var rows []observation.RawRow
	for i := start + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		rows = append(rows, observation.RawRow{
			// Line is 1-based, matching what a spreadsheet shows.
			Line:      i + 1,
			Price:     cell(rec, cols.Price),
			Stock:     cell(rec, cols.Stock),
			UnitsSold: cell(rec, cols.UnitsSold),
			Title:     cell(rec, cols.Title),
			ProductID: cell(rec, cols.ProductID),
			Brand:     cell(rec, cols.Brand),
			SKU:       cell(rec, cols.SKU),
		})
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// sniffDelimiter picks the most frequent of , ; and tab on the first line.
func sniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}
