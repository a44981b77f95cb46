package sheet

import (
	"strings"

	"github.com/sells-group/staff-eval/internal/model"
)

// SubjectAliases are the header names accepted for the person-name column,
// in precedence order.
var SubjectAliases = []string{"NOME", "OPERADOR", "MEDICO", "COLABORADOR", "FUNCIONARIO"}

// MetricAliases maps each metric to its accepted header names, in
// precedence order. Headers are matched after NormalizeHeader.
var MetricAliases = map[model.Metric][]string{
	model.MetricRegulation: {"TEMPO MEDIO REGULACAO", "TEMPO REGULACAO", "REGULACAO", "TMR"},
	model.MetricCritical:   {"TEMPO MEDIO CRITICO", "TEMPO CRITICO", "CRITICO"},
	model.MetricRemoved:    {"LIGACOES REMOVIDAS", "REMOVIDAS", "REMOVIDOS"},
	model.MetricPause:      {"PAUSA MENSAL", "TEMPO PAUSA", "PAUSA"},
	model.MetricExit:       {"TEMPO SAIDA", "SAIDA"},
	model.MetricShifts:     {"QTD PLANTOES", "PLANTOES", "TURNOS"},
}

// durationMetrics are parsed with ParseDuration; the rest with ParseCount.
var durationMetrics = map[model.Metric]bool{
	model.MetricRegulation: true,
	model.MetricCritical:   true,
	model.MetricPause:      true,
	model.MetricExit:       true,
}

// Columns is the resolved position of every logical field in a sheet.
type Columns struct {
	Subject int
	Metrics map[model.Metric]int
}

// LocateColumns resolves the subject column and every metric column it can
// find. A missing subject column is a Rejection; missing metric columns are
// not.
func LocateColumns(h Headers) (Columns, error) {
	subject, ok := h.Locate(SubjectAliases...)
	if !ok {
		return Columns{}, &Rejection{
			Reason: ReasonMissingColumn,
			Field:  "subject name",
			Detail: "expected one of: " + strings.Join(SubjectAliases, ", "),
		}
	}

	cols := Columns{Subject: subject, Metrics: make(map[model.Metric]int)}
	for _, m := range model.AllMetrics {
		i, ok := h.Locate(MetricAliases[m]...)
		if !ok || i == subject {
			continue
		}
		cols.Metrics[m] = i
	}
	return cols, nil
}

// ExtractMetrics parses the metric cells of one row keyed by normalized
// header. Unparseable cells are reported in bad (metric → raw text) and left
// absent in the result.
func ExtractMetrics(h Headers, cols Columns, cells map[string]string) (ms model.Metrics, bad map[model.Metric]string) {
	for _, m := range model.AllMetrics {
		idx, ok := cols.Metrics[m]
		if !ok {
			continue
		}
		raw := cells[h.Key(idx)]
		if raw == "" {
			continue
		}

		var v int64
		var parsed bool
		if durationMetrics[m] {
			v, parsed = ParseDuration(raw)
		} else {
			v, parsed = ParseCount(raw)
		}
		if !parsed {
			if bad == nil {
				bad = make(map[model.Metric]string)
			}
			bad[m] = raw
			continue
		}
		ms.Set(m, &v)
	}
	return ms, bad
}
