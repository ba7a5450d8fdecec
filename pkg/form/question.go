// Package form defines the question model shared by the traversal engine and form drivers.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the input variant of a question.
type Kind string

const (
	KindText         Kind = "text"
	KindParagraph    Kind = "paragraph"
	KindRadio        Kind = "radio"
	KindDropdown     Kind = "dropdown"
	KindCheckbox     Kind = "checkbox"
	KindDate         Kind = "date"
	KindTime         Kind = "time"
	KindDatetime     Kind = "datetime"
	KindDuration     Kind = "duration"
	KindRadioGrid    Kind = "radio_grid"
	KindCheckboxGrid Kind = "checkbox_grid"
)

// OtherLabel is the option label shown for a free-text "Other" choice.
const OtherLabel = "Other"

// requiredSuffix trails every required question header on the live form.
const requiredSuffix = " *"

// ErrStale reports that a question's element is detached from the page and must be re-discovered.
var ErrStale = errors.New("question element is stale")

// Identity is the cache key of a question.
type Identity struct {
	Header      string `json:"header"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// NewIdentity builds an identity from scraped text, dropping the required marker from the header.
func NewIdentity(header, description string, required bool) Identity {
	header = strings.TrimSpace(header)
	if required {
		header = strings.TrimSuffix(header, requiredSuffix)
		header = strings.TrimSuffix(header, "*")
		header = strings.TrimSpace(header)
	}
	return Identity{Header: header, Description: strings.TrimSpace(description), Required: required}
}

// Key is a stable string encoding used for map lookups and storage.
func (id Identity) Key() string {
	return fmt.Sprintf("%q|%q|%t", id.Header, id.Description, id.Required)
}

func (id Identity) String() string {
	return id.Header
}

// Info is the metadata of a question as read from the form.
type Info struct {
	Identity
	Kind     Kind     `json:"kind"`
	Options  []string `json:"options,omitempty"`  // choices, or grid columns
	Rows     []string `json:"rows,omitempty"`     // grid sub-questions
	HasOther bool     `json:"has_other,omitempty"`
}

func (i Info) IsGrid() bool {
	return i.Kind == KindRadioGrid || i.Kind == KindCheckboxGrid
}

// IsChoice reports whether answers are picked from Options.
func (i Info) IsChoice() bool {
	switch i.Kind {
	case KindRadio, KindDropdown, KindCheckbox, KindRadioGrid, KindCheckboxGrid:
		return true
	default:
		return false
	}
}

// IsMulti reports whether more than one option may be selected.
func (i Info) IsMulti() bool {
	return i.Kind == KindCheckbox || i.Kind == KindCheckboxGrid
}

// Element is an opaque handle to a re-discovered question element.
type Element any

// Part is one ordered unit handed to Question.Answer: a single value, several values for a
// multi-select, or no values for a skipped grid row.
type Part []string

// Question is one live question on the form.
type Question interface {
	// Info reads the question metadata. It returns ErrStale when the element must be re-discovered.
	Info(ctx context.Context) (Info, error)
	// SetElement rebinds the question to a re-discovered element.
	SetElement(el Element)
	// Answer fills the question with the given parts in order.
	Answer(ctx context.Context, parts ...Part) error
}
