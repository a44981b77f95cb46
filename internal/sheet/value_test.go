package sheet

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"7200", 7200, true},
		{"0", 0, true},
		{"02:00:00", 7200, true},
		{"2:00:00", 7200, true},
		{"00:01:10", 70, true},
		{"23:59:59", 86399, true},
		{"02:30:00 PM", 52200, true},
		{"02:30:00 pm", 52200, true},
		{"02:30:00PM", 52200, true},
		{"02:30:00 p.m.", 52200, true},
		{"12:00:00 AM", 0, true},
		{"12:15:00 PM", 44100, true},
		{"11:00:00 AM", 39600, true},
		{"  00:00:45  ", 45, true},
		{"not a time", 0, false},
		{"", 0, false},
		{"24:00:00", 0, false},
		{"13:00:00 PM", 0, false},
		{"00:00:00 AM", 0, false},
		{"01:60:00", 0, false},
		{"01:00", 0, false},
		{"-5", 0, false},
		{"1.5", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDuration(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"12", 12, true},
		{"12.0", 12, true},
		{"12,0", 12, true},
		{"0", 0, true},
		{"12.5", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCount(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, "", CellValue(nil))

	f := xlsx.NewFile()
	sh, err := f.AddSheet("S")
	assert.NoError(t, err)
	row := sh.AddRow()

	text := row.AddCell()
	text.SetString("  Maria Souza ")
	assert.Equal(t, "Maria Souza", CellValue(text))

	num := row.AddCell()
	num.SetInt(7200)
	assert.Equal(t, "7200", CellValue(num))
}

func TestCellValue_TimeFormats(t *testing.T) {
	tests := []struct {
		name   string
		days   float64
		format string
		want   string
	}{
		{"hh:mm:ss", 70.0 / 86400, "hh:mm:ss", "70"},
		{"h:mm:ss", 7200.0 / 86400, "h:mm:ss", "7200"},
		{"elapsed", 70.0 / 86400, "[h]:mm:ss", "70"},
		{"elapsed past a day", 36.5 / 24, "[h]:mm:ss", "131400"},
		{"clock past a day keeps hours", 36.5 / 24, "hh:mm:ss", "131400"},
		{"am/pm", 70.0 / 86400, "h:mm:ss AM/PM", "70"},
		{"pm", 52200.0 / 86400, "hh:mm:ss AM/PM", "52200"},
		{"minutes and seconds", 95.0 / 86400, "mm:ss", "95"},
		{"locale prefix", 3600.0 / 86400, "[$-416]h:mm:ss", "3600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := xlsx.NewFile()
			sh, err := c.AddSheet("S")
			require.NoError(t, err)
			cell := sh.AddRow().AddCell()
			cell.SetFloatWithFormat(tt.days, tt.format)

			got := CellValue(cell)
			assert.Equal(t, tt.want, got)
			secs, ok := ParseDuration(got)
			assert.True(t, ok)
			assert.Equal(t, tt.want, strconv.FormatInt(secs, 10))
		})
	}
}

func TestTimeOnlyFormat(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"hh:mm:ss", true},
		{"[h]:mm:ss", true},
		{"h:mm AM/PM", true},
		{"mm:ss", true},
		{"[$-416]h:mm:ss", true},
		{"[Red]hh:mm:ss", true},
		{"general", false},
		{"0.00", false},
		{"#,##0", false},
		{"@", false},
		{"dd/mm/yyyy", false},
		{"yyyy-mm-dd hh:mm:ss", false},
		{`0 "hours"`, false},
		{`0\h`, false},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, timeOnlyFormat(tt.format))
		})
	}
}
