package form

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Input layouts accepted for the temporal kinds.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DatetimeLayout = "2006-01-02 15:04"
	// MaxDurationHours is the largest hour count a duration question accepts.
	MaxDurationHours = 72
)

var (
	ErrInvalidAnswer = errors.New("invalid answer")
	ErrRequired      = errors.New("this question is required and cannot be skipped")
)

var durationPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})$`)

// Validate checks a complete answer against the question metadata.
func Validate(info Info, a Answer) error {
	if info.IsGrid() {
		if a.Kind == AnswerSkip {
			return validateSkip(info)
		}
		if a.Kind != AnswerGrid {
			return fmt.Errorf("%w: %s question expects a grid answer", ErrInvalidAnswer, info.Kind)
		}
		for _, c := range a.Cells {
			if c.Answer == nil {
				return fmt.Errorf("%w: row %q is unanswered", ErrInvalidAnswer, c.Row)
			}
			if err := ValidateRow(info, *c.Answer); err != nil {
				return fmt.Errorf("row %q: %w", c.Row, err)
			}
		}
		return nil
	}

	switch a.Kind {
	case AnswerEmpty:
		return fmt.Errorf("%w: empty answer", ErrInvalidAnswer)
	case AnswerSkip:
		return validateSkip(info)
	case AnswerScalar:
		return validateValue(info, a.Value, false)
	case AnswerTuple:
		if !info.IsMulti() {
			return fmt.Errorf("%w: %s question takes a single value", ErrInvalidAnswer, info.Kind)
		}
		return validateValues(info, a.Values, false)
	case AnswerGrid:
		return fmt.Errorf("%w: %s question does not take a grid answer", ErrInvalidAnswer, info.Kind)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAnswerKind, int(a.Kind))
	}
}

// ValidateRow checks the answer for a single grid row.
func ValidateRow(info Info, a Answer) error {
	switch a.Kind {
	case AnswerSkip:
		return validateSkip(info)
	case AnswerScalar:
		return validateValue(info, a.Value, true)
	case AnswerTuple:
		if info.Kind != KindCheckboxGrid {
			return fmt.Errorf("%w: a row takes a single value", ErrInvalidAnswer)
		}
		return validateValues(info, a.Values, true)
	default:
		return fmt.Errorf("%w: a row cannot hold a %s answer", ErrInvalidAnswer, a.Kind)
	}
}

func validateSkip(info Info) error {
	if info.Required {
		return ErrRequired
	}
	return nil
}

func validateValues(info Info, values []string, row bool) error {
	if len(values) == 0 {
		if info.Required {
			return ErrRequired
		}
		return nil
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return fmt.Errorf("%w: %q selected twice", ErrInvalidAnswer, v)
		}
		seen[v] = true
		if err := validateValue(info, v, row); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(info Info, v string, row bool) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidAnswer)
	}

	switch info.Kind {
	case KindText, KindParagraph:
		return nil
	case KindRadio, KindDropdown, KindCheckbox, KindRadioGrid, KindCheckboxGrid:
		for _, opt := range info.Options {
			if opt == v {
				return nil
			}
		}
		// Free text lands in the "Other" field.
		if info.HasOther && !row {
			return nil
		}
		return fmt.Errorf("%w: %q is not one of the options", ErrInvalidAnswer, v)
	case KindDate:
		return parseLayout(DateLayout, v)
	case KindTime:
		return parseLayout(TimeLayout, v)
	case KindDatetime:
		return parseLayout(DatetimeLayout, v)
	case KindDuration:
		_, err := ParseDuration(v)
		return err
	default:
		return fmt.Errorf("%w: unsupported question kind %q", ErrInvalidAnswer, info.Kind)
	}
}

func parseLayout(layout, v string) error {
	if _, err := time.Parse(layout, v); err != nil {
		return fmt.Errorf("%w: %q does not match %s", ErrInvalidAnswer, v, layout)
	}
	return nil
}

// ParseDuration reads an H:MM:SS answer into hours, minutes and seconds.
func ParseDuration(v string) ([3]int, error) {
	var out [3]int
	m := durationPattern.FindStringSubmatch(v)
	if m == nil {
		return out, fmt.Errorf("%w: %q is not H:MM:SS", ErrInvalidAnswer, v)
	}
	for i := range out {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return out, fmt.Errorf("%w: %q is not H:MM:SS", ErrInvalidAnswer, v)
		}
		out[i] = n
	}
	if out[0] > MaxDurationHours || out[1] > 59 || out[2] > 59 {
		return out, fmt.Errorf("%w: %q is out of range", ErrInvalidAnswer, v)
	}
	return out, nil
}
