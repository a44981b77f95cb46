package sheet

import (
	"strings"

	"github.com/sells-group/staff-eval/internal/model"
)

// layoutSentinels is the fixed vocabulary of first-header-cell values, one
// set per ingestion pipeline.
var layoutSentinels = []struct {
	text string
	typ  model.SheetType
}{
	{"OPERADOR", model.SheetDispatchFleet},
	{"RADIO OPERADOR", model.SheetDispatchFleet},
	{"TARM", model.SheetDispatchFleet},
	{"FROTA", model.SheetDispatchFleet},
	{"MEDICO", model.SheetPhysician},
	{"MEDICOS", model.SheetPhysician},
	{"MEDICO REGULADOR", model.SheetPhysician},
}

// Classify picks the ingestion pipeline from the first header cell. The
// normalized cell must equal a sentinel or start with one followed by a
// space ("MEDICO PLANTONISTA"). Anything else is rejected; there is no
// default layout.
func Classify(firstHeader string) (model.SheetType, error) {
	key := NormalizeHeader(firstHeader)
	if key != "" {
		for _, s := range layoutSentinels {
			if key == s.text || strings.HasPrefix(key, s.text+" ") {
				return s.typ, nil
			}
		}
	}
	return "", &Rejection{
		Reason: ReasonUnknownLayout,
		Field:  strings.TrimSpace(firstHeader),
		Detail: "expected the first column to be OPERADOR, TARM, FROTA or MEDICO",
	}
}
