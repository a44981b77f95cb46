package sheet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/resolve"
)

// Record is one usable data row.
type Record struct {
	RowNumber int               // 1-based sheet row; the header is row 1
	Subject   string            // raw subject cell text
	Cells     map[string]string // normalized header → raw cell text, non-empty cells only
	Metrics   model.Metrics
}

// Sheet is a parsed, classified workbook.
type Sheet struct {
	Type    model.SheetType
	Headers Headers
	Columns Columns
	Records []Record
	// Skipped holds row-level diagnostics: dropped rows and unparseable
	// cells.
	Skipped []model.Diagnostic
}

// RowMetrics re-derives a row's metrics from its staged cells.
func (s *Sheet) RowMetrics(cells map[string]string) model.Metrics {
	ms, _ := ExtractMetrics(s.Headers, s.Columns, cells)
	return ms
}

// ReadWorkbook parses the first sheet of an .xlsx file held in memory.
func ReadWorkbook(data []byte) (*Sheet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, &Rejection{Reason: ReasonUnreadable, Err: err}
	}
	if len(f.Sheets) == 0 {
		return nil, &Rejection{Reason: ReasonEmpty}
	}
	return Parse(sheetRows(f.Sheets[0]))
}

func sheetRows(sh *xlsx.Sheet) [][]string {
	rows := make([][]string, 0, len(sh.Rows))
	for _, row := range sh.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = CellValue(c)
		}
		rows = append(rows, cells)
	}
	return rows
}

// Parse classifies and parses a sheet given as text rows. rows[0] is the
// header row. Classification and the subject column are checked before any
// data row is read; either failing returns a *Rejection.
func Parse(rows [][]string) (*Sheet, error) {
	if len(rows) == 0 || blank(rows[0]) {
		return nil, &Rejection{Reason: ReasonEmpty}
	}

	typ, err := Classify(rows[0][0])
	if err != nil {
		return nil, err
	}

	headers := NewHeaders(rows[0])
	cols, err := LocateColumns(headers)
	if err != nil {
		return nil, err
	}

	sh := &Sheet{Type: typ, Headers: headers, Columns: cols}
	for i, raw := range rows[1:] {
		rowNum := i + 2
		if blank(raw) {
			continue
		}
		sh.addRow(rowNum, raw)
	}
	return sh, nil
}

func (s *Sheet) addRow(rowNum int, raw []string) {
	cells := make(map[string]string, len(raw))
	for j, v := range raw {
		v = strings.TrimSpace(v)
		key := s.Headers.Key(j)
		if v == "" || key == "" || s.Headers.index[key] != j {
			continue
		}
		cells[key] = v
	}

	subject := cells[s.Headers.Key(s.Columns.Subject)]
	if resolve.NormalizeName(subject) == "" {
		s.Skipped = append(s.Skipped, model.Diagnostic{
			Kind:    model.DiagSkippedRow,
			Row:     rowNum,
			Message: "missing subject name",
		})
		return
	}

	ms, bad := ExtractMetrics(s.Headers, s.Columns, cells)
	for _, m := range sortedMetrics(bad) {
		s.Skipped = append(s.Skipped, model.Diagnostic{
			Kind:    model.DiagSkippedRow,
			Row:     rowNum,
			Subject: subject,
			Message: fmt.Sprintf("unparseable %s value %q", m, bad[m]),
		})
	}
	if ms.Empty() {
		s.Skipped = append(s.Skipped, model.Diagnostic{
			Kind:    model.DiagSkippedRow,
			Row:     rowNum,
			Subject: subject,
			Message: "no usable metric in row",
		})
		return
	}

	s.Records = append(s.Records, Record{
		RowNumber: rowNum,
		Subject:   subject,
		Cells:     cells,
		Metrics:   ms,
	})
}

func sortedMetrics(bad map[model.Metric]string) []model.Metric {
	out := make([]model.Metric, 0, len(bad))
	for m := range bad {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
