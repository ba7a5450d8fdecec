package form

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridFillAndClearLast(t *testing.T) {
	grid := NewGrid([]string{"Mon", "Tue", "Wed"})
	require.False(t, grid.Complete())

	for _, v := range []string{"a", "b", "c"} {
		_, err := grid.Fill(Scalar(v))
		require.NoError(t, err)
	}
	require.True(t, grid.Complete())

	_, err := grid.Fill(Scalar("d"))
	assert.ErrorIs(t, err, ErrGridFull)

	row, ok := grid.ClearLast()
	require.True(t, ok)
	assert.Equal(t, "Wed", row)

	// Earlier rows are untouched.
	require.NotNil(t, grid.Cells[0].Answer)
	require.NotNil(t, grid.Cells[1].Answer)
	assert.Equal(t, "a", grid.Cells[0].Answer.Value)
	assert.Equal(t, "b", grid.Cells[1].Answer.Value)
	assert.Nil(t, grid.Cells[2].Answer)

	next, ok := grid.NextRow()
	require.True(t, ok)
	assert.Equal(t, "Wed", next)
}

func TestFillRejectsNonGrid(t *testing.T) {
	a := Scalar("x")
	_, err := a.Fill(Scalar("y"))
	assert.ErrorIs(t, err, ErrNotGrid)

	g := NewGrid([]string{"r"})
	_, err = g.Fill(NewGrid(nil))
	assert.Error(t, err)
}

func TestParts(t *testing.T) {
	tests := []struct {
		name   string
		answer Answer
		want   []Part
	}{
		{"empty", Answer{}, nil},
		{"skip", Skip(), nil},
		{"scalar", Scalar("5"), []Part{{"5"}}},
		{"tuple", Tuple("a", "b"), []Part{{"a"}, {"b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.answer.Parts()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	grid := NewGrid([]string{"r1", "r2", "r3"})
	_, _ = grid.Fill(Scalar("x"))
	_, _ = grid.Fill(Tuple("y", "z"))
	_, err := grid.Parts()
	assert.Error(t, err, "incomplete grid must not flatten")

	_, _ = grid.Fill(Skip())
	parts, err := grid.Parts()
	require.NoError(t, err)
	assert.Equal(t, []Part{{"x"}, {"y", "z"}, {}}, parts)

	_, err = Answer{Kind: AnswerKind(42)}.Parts()
	assert.ErrorIs(t, err, ErrUnknownAnswerKind)
}

func TestCloneIsDeep(t *testing.T) {
	grid := NewGrid([]string{"r1"})
	_, _ = grid.Fill(Tuple("a"))

	c := grid.Clone()
	c.Cells[0].Answer.Values[0] = "changed"
	assert.Equal(t, "a", grid.Cells[0].Answer.Values[0])
}

func TestReplaceAndContains(t *testing.T) {
	a := Tuple("A", OtherLabel)
	require.True(t, a.Contains(OtherLabel))

	b := a.Replace(OtherLabel, "my own")
	assert.Equal(t, []string{"A", "my own"}, b.Values)
	assert.True(t, a.Contains(OtherLabel), "original unchanged")
}

func TestAnswerJSONRoundTripKeepsKind(t *testing.T) {
	grid := NewGrid([]string{"r1", "r2"})
	_, _ = grid.Fill(Scalar("x"))

	data, err := json.Marshal(grid)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"grid"`)

	var back Answer
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, grid, back)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &back))
}

func TestAnswerString(t *testing.T) {
	grid := NewGrid([]string{"r1", "r2"})
	_, _ = grid.Fill(Scalar("x"))
	assert.Equal(t, "r1: x\nr2: -", grid.String())
	assert.Equal(t, "a, b", Tuple("a", "b").String())
	assert.Equal(t, "(skipped)", Skip().String())
}
