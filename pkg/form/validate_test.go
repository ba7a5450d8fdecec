package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	radio := Info{Identity: Identity{Header: "Pick", Required: true}, Kind: KindRadio, Options: []string{"A", "B"}}
	radioOther := radio
	radioOther.HasOther = true
	checkbox := Info{Identity: Identity{Header: "Many"}, Kind: KindCheckbox, Options: []string{"A", "B"}}
	optionalText := Info{Identity: Identity{Header: "Name"}, Kind: KindText}

	tests := []struct {
		name    string
		info    Info
		answer  Answer
		wantErr error
	}{
		{"radio option", radio, Scalar("A"), nil},
		{"radio unknown option", radio, Scalar("C"), ErrInvalidAnswer},
		{"radio other free text", radioOther, Scalar("C"), nil},
		{"required skip", radio, Skip(), ErrRequired},
		{"optional skip", optionalText, Skip(), nil},
		{"radio tuple", radio, Tuple("A", "B"), ErrInvalidAnswer},
		{"checkbox tuple", checkbox, Tuple("A", "B"), nil},
		{"checkbox duplicate", checkbox, Tuple("A", "A"), ErrInvalidAnswer},
		{"empty", optionalText, Answer{}, ErrInvalidAnswer},
		{"blank text", optionalText, Scalar("  "), ErrInvalidAnswer},
		{"date ok", Info{Kind: KindDate}, Scalar("2024-02-29"), nil},
		{"date bad", Info{Kind: KindDate}, Scalar("29/02/2024"), ErrInvalidAnswer},
		{"time ok", Info{Kind: KindTime}, Scalar("23:59"), nil},
		{"time bad", Info{Kind: KindTime}, Scalar("24:00"), ErrInvalidAnswer},
		{"datetime ok", Info{Kind: KindDatetime}, Scalar("2024-01-01 08:30"), nil},
		{"duration ok", Info{Kind: KindDuration}, Scalar("72:00:00"), nil},
		{"duration too long", Info{Kind: KindDuration}, Scalar("73:00:00"), ErrInvalidAnswer},
		{"duration minutes", Info{Kind: KindDuration}, Scalar("1:60:00"), ErrInvalidAnswer},
		{"grid on text", optionalText, NewGrid([]string{"r"}), ErrInvalidAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.info, tt.answer)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateGrid(t *testing.T) {
	info := Info{
		Identity: Identity{Header: "Rate", Required: true},
		Kind:     KindRadioGrid,
		Options:  []string{"1", "2"},
		Rows:     []string{"food", "service"},
	}

	grid := NewGrid(info.Rows)
	_, _ = grid.Fill(Scalar("1"))
	assert.ErrorIs(t, Validate(info, grid), ErrInvalidAnswer, "incomplete grid")

	_, _ = grid.Fill(Scalar("2"))
	assert.NoError(t, Validate(info, grid))

	assert.ErrorIs(t, ValidateRow(info, Scalar("3")), ErrInvalidAnswer)
	assert.ErrorIs(t, ValidateRow(info, Skip()), ErrRequired)
	assert.ErrorIs(t, ValidateRow(info, Tuple("1")), ErrInvalidAnswer)
	assert.ErrorIs(t, Validate(info, Scalar("1")), ErrInvalidAnswer)
}

func TestParseDuration(t *testing.T) {
	got, err := ParseDuration("1:02:03")
	assert.NoError(t, err)
	assert.Equal(t, [3]int{1, 2, 3}, got)

	_, err = ParseDuration("1:2:3")
	assert.ErrorIs(t, err, ErrInvalidAnswer)
}

func TestNewIdentityStripsRequiredMarker(t *testing.T) {
	id := NewIdentity("  Age *", " years ", true)
	assert.Equal(t, Identity{Header: "Age", Description: "years", Required: true}, id)

	// Optional headers keep their text even if it ends in an asterisk.
	assert.Equal(t, "Footnote *", NewIdentity("Footnote *", "", false).Header)
}
