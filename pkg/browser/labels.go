package browser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"formpilot/pkg/form"
)

const (
	// gridDelimiter joins a column and a row in the aria-label of a grid cell.
	gridDelimiter = ", response for "
	// otherValue marks the free-text choice on radio and checkbox questions.
	otherValue = "__other_option__"
	// otherAriaLabel is the label Google Forms gives the Other choice itself.
	otherAriaLabel = "Other:"
)

// Accessible labels of the split date, time and duration inputs.
const (
	labelDay     = "Day of the month"
	labelMonth   = "Month"
	labelYear    = "Year"
	labelHour    = "Hour"
	labelMinute  = "Minute"
	labelHours   = "Hours"
	labelMinutes = "Minutes"
	labelSeconds = "Seconds"
)

var gridLabel = regexp.MustCompile(`^(.+?)` + regexp.QuoteMeta(gridDelimiter) + `(.+)$`)

// splitGridLabel reads "column, response for row". The first delimiter splits, so either label
// may contain commas.
func splitGridLabel(label string) (column, row string, ok bool) {
	m := gridLabel.FindStringSubmatch(label)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// gridCellLabel is the inverse of splitGridLabel.
func gridCellLabel(column, row string) string {
	return column + gridDelimiter + row
}

// isGrid reports whether every label is a grid cell label. An empty list is not a grid.
func isGrid(labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	for _, l := range labels {
		if _, _, ok := splitGridLabel(l); !ok {
			return false
		}
	}
	return true
}

// gridAxes returns the distinct columns and rows of grid cell labels in first-seen order.
func gridAxes(labels []string) (columns, rows []string) {
	seenCol := map[string]bool{}
	seenRow := map[string]bool{}
	for _, l := range labels {
		c, r, ok := splitGridLabel(l)
		if !ok {
			continue
		}
		if !seenCol[c] {
			seenCol[c] = true
			columns = append(columns, c)
		}
		if !seenRow[r] {
			seenRow[r] = true
			rows = append(rows, r)
		}
	}
	return columns, rows
}

// uniqueNonEmpty drops blanks and repeats, keeping order.
func uniqueNonEmpty(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// signals is what classification needs to know about a question element.
type signals struct {
	datePicker bool
	dateParts  bool // separate month and day inputs
	hourMinute bool
	duration   bool
	dropdown   bool
	checkboxes []string
	radios     []string
	paragraph  bool
	textbox    bool
}

// classify picks the question kind. Date and time inputs win over everything else, and a date
// with a time is a datetime.
func classify(s signals) (form.Kind, bool) {
	date := s.datePicker || s.dateParts
	switch {
	case date && s.hourMinute:
		return form.KindDatetime, true
	case date:
		return form.KindDate, true
	case s.hourMinute:
		return form.KindTime, true
	case s.dropdown:
		return form.KindDropdown, true
	case len(s.checkboxes) > 0:
		if isGrid(s.checkboxes) {
			return form.KindCheckboxGrid, true
		}
		return form.KindCheckbox, true
	case len(s.radios) > 0:
		if isGrid(s.radios) {
			return form.KindRadioGrid, true
		}
		return form.KindRadio, true
	case s.paragraph:
		return form.KindParagraph, true
	case s.duration:
		return form.KindDuration, true
	case s.textbox:
		return form.KindText, true
	default:
		return "", false
	}
}

// clockParts splits a validated "HH:MM" value.
func clockParts(v string) (hour, minute string, err error) {
	t, err := time.Parse(form.TimeLayout, strings.TrimSpace(v))
	if err != nil {
		return "", "", fmt.Errorf("%w: %q is not HH:MM", form.ErrInvalidAnswer, v)
	}
	return strconv.Itoa(t.Hour()), fmt.Sprintf("%02d", t.Minute()), nil
}

// datetimeParts splits a "YYYY-MM-DD HH:MM" value.
func datetimeParts(v string) (time.Time, string, string, error) {
	t, err := time.Parse(form.DatetimeLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, "", "", fmt.Errorf("%w: %q is not YYYY-MM-DD HH:MM", form.ErrInvalidAnswer, v)
	}
	return t, strconv.Itoa(t.Hour()), fmt.Sprintf("%02d", t.Minute()), nil
}
