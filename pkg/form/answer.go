package form

import (
	"errors"
	"fmt"
	"strings"
)

// AnswerKind tags the shape of an Answer.
type AnswerKind int

const (
	AnswerEmpty AnswerKind = iota
	AnswerScalar
	AnswerTuple
	AnswerGrid
	AnswerSkip
)

var answerKindNames = map[AnswerKind]string{
	AnswerEmpty:  "empty",
	AnswerScalar: "scalar",
	AnswerTuple:  "tuple",
	AnswerGrid:   "grid",
	AnswerSkip:   "skip",
}

var (
	ErrNotGrid  = errors.New("answer is not a grid")
	ErrGridFull = errors.New("every grid row is already answered")
	// ErrUnknownAnswerKind is returned when an Answer carries a tag outside AnswerKind.
	ErrUnknownAnswerKind = errors.New("unknown answer kind")
)

func (k AnswerKind) String() string {
	if name, ok := answerKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AnswerKind(%d)", int(k))
}

func (k AnswerKind) MarshalText() ([]byte, error) {
	name, ok := answerKindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAnswerKind, int(k))
	}
	return []byte(name), nil
}

func (k *AnswerKind) UnmarshalText(text []byte) error {
	for kind, name := range answerKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAnswerKind, string(text))
}

// Answer is a tagged value: a scalar, an ordered tuple, an ordered grid of row answers, or skip.
// The zero value is the empty answer.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Values []string   `json:"values,omitempty"`
	Cells  []Cell     `json:"cells,omitempty"`
}

// Cell is one grid row. A nil Answer means the row has not been answered yet.
type Cell struct {
	Row    string  `json:"row"`
	Answer *Answer `json:"answer,omitempty"`
}

func Scalar(v string) Answer {
	return Answer{Kind: AnswerScalar, Value: v}
}

func Tuple(values ...string) Answer {
	return Answer{Kind: AnswerTuple, Values: append([]string(nil), values...)}
}

func Skip() Answer {
	return Answer{Kind: AnswerSkip}
}

// NewGrid returns a grid answer with every row unanswered.
func NewGrid(rows []string) Answer {
	cells := make([]Cell, len(rows))
	for i, row := range rows {
		cells[i] = Cell{Row: row}
	}
	return Answer{Kind: AnswerGrid, Cells: cells}
}

func (a Answer) IsEmpty() bool {
	return a.Kind == AnswerEmpty
}

func (a Answer) IsSkip() bool {
	return a.Kind == AnswerSkip
}

// Clone returns a deep copy.
func (a Answer) Clone() Answer {
	out := Answer{Kind: a.Kind, Value: a.Value}
	if a.Values != nil {
		out.Values = append([]string(nil), a.Values...)
	}
	if a.Cells != nil {
		out.Cells = make([]Cell, len(a.Cells))
		for i, c := range a.Cells {
			out.Cells[i].Row = c.Row
			if c.Answer != nil {
				sub := c.Answer.Clone()
				out.Cells[i].Answer = &sub
			}
		}
	}
	return out
}

// Complete reports whether the answer can be submitted. A grid is complete once every row is set.
func (a Answer) Complete() bool {
	switch a.Kind {
	case AnswerEmpty:
		return false
	case AnswerGrid:
		for _, c := range a.Cells {
			if c.Answer == nil {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// NextRow returns the first unanswered grid row.
func (a Answer) NextRow() (string, bool) {
	if a.Kind != AnswerGrid {
		return "", false
	}
	for _, c := range a.Cells {
		if c.Answer == nil {
			return c.Row, true
		}
	}
	return "", false
}

// Fill sets the first unanswered grid row and returns its label.
func (a *Answer) Fill(sub Answer) (string, error) {
	if a.Kind != AnswerGrid {
		return "", ErrNotGrid
	}
	if sub.Kind == AnswerGrid || sub.Kind == AnswerEmpty {
		return "", fmt.Errorf("grid row cannot hold a %s answer", sub.Kind)
	}
	for i := range a.Cells {
		if a.Cells[i].Answer == nil {
			v := sub.Clone()
			a.Cells[i].Answer = &v
			return a.Cells[i].Row, nil
		}
	}
	return "", ErrGridFull
}

// ClearLast clears the most recently filled grid row.
func (a *Answer) ClearLast() (string, bool) {
	if a.Kind != AnswerGrid {
		return "", false
	}
	for i := len(a.Cells) - 1; i >= 0; i-- {
		if a.Cells[i].Answer != nil {
			a.Cells[i].Answer = nil
			return a.Cells[i].Row, true
		}
	}
	return "", false
}

// LastFilled returns the most recently filled grid row and its answer.
func (a Answer) LastFilled() (Cell, bool) {
	if a.Kind != AnswerGrid {
		return Cell{}, false
	}
	for i := len(a.Cells) - 1; i >= 0; i-- {
		if a.Cells[i].Answer != nil {
			return a.Cells[i], true
		}
	}
	return Cell{}, false
}

// Parts flattens the answer into the ordered parts handed to Question.Answer.
// A tuple yields one part per value. A grid yields one part per row; a skipped row yields an
// empty part.
func (a Answer) Parts() ([]Part, error) {
	switch a.Kind {
	case AnswerEmpty, AnswerSkip:
		return nil, nil
	case AnswerScalar:
		return []Part{{a.Value}}, nil
	case AnswerTuple:
		parts := make([]Part, len(a.Values))
		for i, v := range a.Values {
			parts[i] = Part{v}
		}
		return parts, nil
	case AnswerGrid:
		parts := make([]Part, len(a.Cells))
		for i, c := range a.Cells {
			if c.Answer == nil {
				return nil, fmt.Errorf("grid row %q is unanswered", c.Row)
			}
			switch c.Answer.Kind {
			case AnswerScalar:
				parts[i] = Part{c.Answer.Value}
			case AnswerTuple:
				parts[i] = append(Part(nil), c.Answer.Values...)
			case AnswerSkip:
				parts[i] = Part{}
			default:
				return nil, fmt.Errorf("grid row %q: %w: %s", c.Row, ErrUnknownAnswerKind, c.Answer.Kind)
			}
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownAnswerKind, int(a.Kind))
	}
}

// Contains reports whether any scalar or tuple value equals v.
func (a Answer) Contains(v string) bool {
	switch a.Kind {
	case AnswerScalar:
		return a.Value == v
	case AnswerTuple:
		for _, x := range a.Values {
			if x == v {
				return true
			}
		}
	}
	return false
}

// Replace swaps every scalar or tuple value equal to old with repl.
func (a Answer) Replace(old, repl string) Answer {
	out := a.Clone()
	switch out.Kind {
	case AnswerScalar:
		if out.Value == old {
			out.Value = repl
		}
	case AnswerTuple:
		for i, x := range out.Values {
			if x == old {
				out.Values[i] = repl
			}
		}
	}
	return out
}

func (a Answer) String() string {
	switch a.Kind {
	case AnswerEmpty:
		return ""
	case AnswerScalar:
		return a.Value
	case AnswerTuple:
		return strings.Join(a.Values, ", ")
	case AnswerSkip:
		return "(skipped)"
	case AnswerGrid:
		var b strings.Builder
		for i, c := range a.Cells {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(c.Row)
			b.WriteString(": ")
			if c.Answer == nil {
				b.WriteString("-")
			} else {
				b.WriteString(c.Answer.String())
			}
		}
		return b.String()
	default:
		return a.Kind.String()
	}
}
