package model

// Metric names a measured quantity on a collaborator state.
type Metric string

const (
	MetricRegulation Metric = "regulation_duration"
	MetricCritical   Metric = "critical_duration"
	MetricRemoved    Metric = "removed_count"
	MetricPause      Metric = "monthly_pause"
	MetricExit       Metric = "exit_duration"
	MetricShifts     Metric = "shift_count"
)

// AllMetrics lists every metric in a stable order.
var AllMetrics = []Metric{
	MetricRegulation,
	MetricCritical,
	MetricRemoved,
	MetricPause,
	MetricExit,
	MetricShifts,
}

// ParseMetric reports whether s is a known metric name.
func ParseMetric(s string) (Metric, bool) {
	for _, m := range AllMetrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Band is one row of a threshold table: values up to and including Max earn
// Points.
type Band struct {
	Max    int64 `json:"max" yaml:"max"`
	Points int   `json:"points" yaml:"points"`
}

// Rule is the ordered band table for one (role, metric) pair.
type Rule struct {
	Role   Role   `json:"role"`
	Metric Metric `json:"metric"`
	Bands  []Band `json:"bands"`
}

// Metrics holds measured values. Nil means the value was never measured.
type Metrics struct {
	DurationSeconds         *int64 `json:"duration_seconds"`
	CriticalDurationSeconds *int64 `json:"critical_duration_seconds"`
	RemovedCount            *int64 `json:"removed_count"`
	MonthlyPauseSeconds     *int64 `json:"monthly_pause_seconds"`
	ExitDurationSeconds     *int64 `json:"exit_duration_seconds"`
	ShiftCount              *int64 `json:"shift_count"`
}

// Get returns the value for m, or nil.
func (ms Metrics) Get(m Metric) *int64 {
	switch m {
	case MetricRegulation:
		return ms.DurationSeconds
	case MetricCritical:
		return ms.CriticalDurationSeconds
	case MetricRemoved:
		return ms.RemovedCount
	case MetricPause:
		return ms.MonthlyPauseSeconds
	case MetricExit:
		return ms.ExitDurationSeconds
	case MetricShifts:
		return ms.ShiftCount
	}
	return nil
}

// Set stores v for m. A nil v clears the value.
func (ms *Metrics) Set(m Metric, v *int64) {
	if v != nil {
		n := *v
		v = &n
	}
	switch m {
	case MetricRegulation:
		ms.DurationSeconds = v
	case MetricCritical:
		ms.CriticalDurationSeconds = v
	case MetricRemoved:
		ms.RemovedCount = v
	case MetricPause:
		ms.MonthlyPauseSeconds = v
	case MetricExit:
		ms.ExitDurationSeconds = v
	case MetricShifts:
		ms.ShiftCount = v
	}
}

// Overlay copies every value present in src onto ms. Values absent in src
// are left untouched.
func (ms *Metrics) Overlay(src Metrics) {
	for _, m := range AllMetrics {
		if v := src.Get(m); v != nil {
			ms.Set(m, v)
		}
	}
}

// Empty reports whether no metric is present.
func (ms Metrics) Empty() bool {
	for _, m := range AllMetrics {
		if ms.Get(m) != nil {
			return false
		}
	}
	return true
}

// Int64 returns a pointer to n.
func Int64(n int64) *int64 {
	return &n
}
