package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx/v2"
)

// CellValue returns the text a spreadsheet UI would display for c. Numeric
// cells go through their number format; if formatting fails the raw value
// is used. Cells formatted as a time of day or an elapsed time yield whole
// seconds instead, since their display text drops or wraps hours. A nil
// cell yields "".
func CellValue(c *xlsx.Cell) string {
	if c == nil {
		return ""
	}
	if secs, ok := timeCellSeconds(c); ok {
		return strconv.FormatInt(secs, 10)
	}
	s, err := c.FormattedValue()
	if err != nil {
		s = c.Value
	}
	return strings.TrimSpace(s)
}

// timeCellSeconds reads a numeric cell with a time-only number format
// ("hh:mm:ss", "[h]:mm:ss", "h:mm:ss AM/PM") as seconds. The stored value is
// a fraction of a day; hours past 23 are kept, never wrapped.
func timeCellSeconds(c *xlsx.Cell) (int64, bool) {
	if c.Type() != xlsx.CellTypeNumeric || !timeOnlyFormat(c.GetNumberFormat()) {
		return 0, false
	}
	v, err := c.Float()
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return int64(math.Round(v * 86400)), true
}

// timeOnlyFormat reports whether an Excel number format shows hours or
// seconds and no date part. Quoted literals, escaped characters and
// bracketed colors or locales are ignored; [h], [mm] and [ss] count.
func timeOnlyFormat(format string) bool {
	f := strings.ToLower(format)
	if i := strings.IndexByte(f, ';'); i >= 0 {
		f = f[:i]
	}

	var b strings.Builder
	for i := 0; i < len(f); i++ {
		switch ch := f[i]; ch {
		case '"':
			j := strings.IndexByte(f[i+1:], '"')
			if j < 0 {
				i = len(f)
				continue
			}
			i += j + 1
		case '\\':
			i++
		case '[':
			j := strings.IndexByte(f[i:], ']')
			if j < 0 {
				i = len(f)
				continue
			}
			if inner := f[i+1 : i+j]; strings.Trim(inner, "hms") == "" {
				b.WriteString(inner)
			}
			i += j
		default:
			b.WriteByte(ch)
		}
	}

	tokens := b.String()
	if strings.ContainsAny(tokens, "yd") {
		return false
	}
	return strings.ContainsAny(tokens, "hs")
}

var (
	digitsRe = regexp.MustCompile(`^[0-9]+$`)
	// H:MM:SS or HH:MM:SS with an optional AM/PM marker ("PM", "p.m.").
	clockRe = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2}):([0-9]{2})(?:\s*([AaPp])\.?\s*[Mm]\.?)?$`)
)

// ParseDuration converts duration text to seconds. Rules, in order:
//  1. a pure digit string is already seconds ("7200")
//  2. H:MM:SS or HH:MM:SS, optionally with AM/PM, read as a time of day
//     and converted to seconds since midnight ("02:30:00 PM" → 52200)
//  3. anything else is absent (ok=false)
func ParseDuration(s string) (seconds int64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if digitsRe.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	if mi > 59 || sec > 59 {
		return 0, false
	}

	switch strings.ToUpper(m[4]) {
	case "":
		if h > 23 {
			return 0, false
		}
	case "A":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
	case "P":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h != 12 {
			h += 12
		}
	}

	return int64(h*3600 + mi*60 + sec), true
}

// ParseCount converts a quantity cell to an integer. It accepts digit
// strings and integral decimals as numeric cells often render ("12.0",
// "12,0"). Negative or fractional values are absent.
func ParseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if digitsRe.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	}

	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || f < 0 || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
