package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"formpilot/pkg/form"
)

// dropdownDelay lets the dropdown popup render before an option is picked.
const dropdownDelay = 500 * time.Millisecond

var (
	errNotQuestion = errors.New("element is not a question")
	errMissing     = errors.New("element not found")
)

// question is one list item of the form page.
type question struct {
	d   *Driver
	el  *rod.Element
	pos int

	info *form.Info
}

// Info reads the metadata once and then serves it from memory while the element stays attached.
func (q *question) Info(ctx context.Context) (form.Info, error) {
	if q.info != nil {
		if !attached(q.el.Context(ctx)) {
			return form.Info{}, form.ErrStale
		}
		return *q.info, nil
	}
	return q.read(ctx)
}

func (q *question) SetElement(el form.Element) {
	if e, ok := el.(*rod.Element); ok {
		q.el = e
	}
}

// read scrapes the header, the required marker, the kind and the choices.
func (q *question) read(ctx context.Context) (form.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, q.d.timeout)
	defer cancel()
	el := q.el.Context(ctx)
	if !attached(el) {
		return form.Info{}, form.ErrStale
	}
	sel := q.d.sel

	sig := signals{
		datePicker: has(el, sel.DateInput),
		dateParts:  has(el, ariaInput(labelMonth)) && has(el, ariaInput(labelDay)),
		hourMinute: has(el, ariaInput(labelHour)) && has(el, ariaInput(labelMinute)),
		duration:   has(el, ariaInput(labelHours)) && has(el, ariaInput(labelMinutes)) && has(el, ariaInput(labelSeconds)),
		dropdown:   has(el, sel.DropdownMenu),
		paragraph:  has(el, sel.Paragraph),
		textbox:    has(el, sel.Textbox),
	}
	checkboxes, checkboxOther := choiceLabels(el, sel.Checkbox)
	radios, radioOther := choiceLabels(el, sel.Radio)
	sig.checkboxes, sig.radios = checkboxes, radios

	kind, ok := classify(sig)
	if !ok {
		return form.Info{}, errNotQuestion
	}

	header := firstText(el, sel.Title)
	if header == "" {
		return form.Info{}, fmt.Errorf("question %d has no title", q.pos)
	}
	info := form.Info{
		Identity: form.NewIdentity(header, firstText(el, sel.Description), has(el, sel.Required)),
		Kind:     kind,
	}

	switch kind {
	case form.KindRadio:
		info.Options, info.HasOther = radios, radioOther
	case form.KindCheckbox:
		info.Options, info.HasOther = checkboxes, checkboxOther
	case form.KindRadioGrid:
		info.Options, info.Rows = gridAxes(radios)
	case form.KindCheckboxGrid:
		info.Options, info.Rows = gridAxes(checkboxes)
	case form.KindDropdown:
		info.Options = dropdownOptions(el, sel.Dropdown)
	}

	q.info = &info
	return info, nil
}

// Answer fills the question. Values have already been validated against the question.
func (q *question) Answer(ctx context.Context, parts ...form.Part) error {
	info, err := q.Info(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, q.d.timeout)
	defer cancel()
	el := q.el.Context(ctx)

	values := flatten(parts)
	if len(values) == 0 && !info.IsGrid() {
		return nil
	}

	switch info.Kind {
	case form.KindText:
		return typeInto(el, q.d.sel.Textbox, values[0])
	case form.KindParagraph:
		return typeInto(el, q.d.sel.Paragraph, values[0])
	case form.KindRadio:
		return q.pick(el, q.d.sel.Radio, values[0])
	case form.KindCheckbox:
		other := false
		for _, v := range values {
			if !contains(info.Options, v) {
				if other {
					return fmt.Errorf("%w: only one Other value is allowed", form.ErrInvalidAnswer)
				}
				other = true
			}
			if err := q.pick(el, q.d.sel.Checkbox, v); err != nil {
				return err
			}
		}
		return nil
	case form.KindDropdown:
		return q.choose(ctx, el, values[0])
	case form.KindDate:
		return q.fillDate(el, values[0])
	case form.KindTime:
		hour, minute, err := clockParts(values[0])
		if err != nil {
			return err
		}
		return fillByLabel(el, []string{labelHour, labelMinute}, []string{hour, minute})
	case form.KindDatetime:
		t, hour, minute, err := datetimeParts(values[0])
		if err != nil {
			return err
		}
		if err := q.fillDate(el, t.Format(form.DateLayout)); err != nil {
			return err
		}
		return fillByLabel(el, []string{labelHour, labelMinute}, []string{hour, minute})
	case form.KindDuration:
		hms, err := form.ParseDuration(values[0])
		if err != nil {
			return err
		}
		return fillByLabel(el, []string{labelHours, labelMinutes, labelSeconds},
			[]string{strconv.Itoa(hms[0]), strconv.Itoa(hms[1]), strconv.Itoa(hms[2])})
	case form.KindRadioGrid, form.KindCheckboxGrid:
		return q.fillGrid(el, info, parts)
	default:
		return fmt.Errorf("cannot answer a %s question", info.Kind)
	}
}

// pick clicks the choice labelled v, or the Other choice with v typed into its field.
func (q *question) pick(el *rod.Element, selector, v string) error {
	choices, err := el.Elements(selector)
	if err != nil {
		return fmt.Errorf("failed to list choices: %w", err)
	}
	var other *rod.Element
	for _, c := range choices {
		if isOther(c) {
			other = c
			continue
		}
		if choiceLabel(c) == v {
			return click(c)
		}
	}
	if other == nil {
		return fmt.Errorf("%w: %q is not a choice", form.ErrInvalidAnswer, v)
	}
	if err := click(other); err != nil {
		return err
	}
	return typeInto(el, q.d.sel.OtherInput, v)
}

// choose opens the dropdown and clicks the visible option v.
func (q *question) choose(ctx context.Context, el *rod.Element, v string) error {
	ok, menu, err := el.Has(q.d.sel.DropdownMenu)
	if err != nil || !ok {
		return fmt.Errorf("dropdown menu not found: %w", errors.Join(err, errMissing))
	}
	if err := click(menu); err != nil {
		return err
	}
	if err := sleepCtx(ctx, dropdownDelay); err != nil {
		return err
	}

	options, err := el.Elements(q.d.sel.Dropdown)
	if err != nil {
		return fmt.Errorf("failed to list dropdown options: %w", err)
	}
	for _, o := range options {
		if attr(o, "data-value") != v {
			continue
		}
		if visible, _ := o.Visible(); visible {
			return click(o)
		}
	}
	return fmt.Errorf("%w: %q is not a dropdown option", form.ErrInvalidAnswer, v)
}

// fillDate uses the native date picker when there is one, else the split month and day fields.
func (q *question) fillDate(el *rod.Element, v string) error {
	t, err := time.Parse(form.DateLayout, strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %q is not YYYY-MM-DD", form.ErrInvalidAnswer, v)
	}
	if ok, picker, err := el.Has(q.d.sel.DateInput); err == nil && ok {
		if err := picker.InputTime(t); err != nil {
			return fmt.Errorf("failed to enter date: %w", err)
		}
		return nil
	}
	labels := []string{labelMonth, labelDay}
	values := []string{strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day())}
	if has(el, ariaInput(labelYear)) {
		labels = append(labels, labelYear)
		values = append(values, strconv.Itoa(t.Year()))
	}
	return fillByLabel(el, labels, values)
}

// fillGrid clicks one cell per chosen column in every answered row.
func (q *question) fillGrid(el *rod.Element, info form.Info, parts []form.Part) error {
	if len(parts) != len(info.Rows) {
		return fmt.Errorf("%w: %d row answers for %d rows", form.ErrInvalidAnswer, len(parts), len(info.Rows))
	}
	selector := q.d.sel.Radio
	if info.Kind == form.KindCheckboxGrid {
		selector = q.d.sel.Checkbox
	}
	cells, err := el.Elements(selector)
	if err != nil {
		return fmt.Errorf("failed to list grid cells: %w", err)
	}
	byLabel := make(map[string]*rod.Element, len(cells))
	for _, c := range cells {
		byLabel[attr(c, "aria-label")] = c
	}

	for i, row := range info.Rows {
		for _, column := range parts[i] {
			cell, ok := byLabel[gridCellLabel(column, row)]
			if !ok {
				return fmt.Errorf("%w: no cell %q in row %q", form.ErrInvalidAnswer, column, row)
			}
			if err := click(cell); err != nil {
				return err
			}
		}
	}
	return nil
}

func attached(el *rod.Element) bool {
	res, err := el.Eval(`() => this.isConnected`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func has(el *rod.Element, selector string) bool {
	if selector == "" {
		return false
	}
	found, err := el.Elements(selector)
	return err == nil && len(found) > 0
}

func firstText(el *rod.Element, selector string) string {
	found, err := el.Elements(selector)
	if err != nil || len(found) == 0 {
		return ""
	}
	text, err := found.First().Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func attr(el *rod.Element, name string) string {
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func ariaInput(label string) string {
	return fmt.Sprintf("input[aria-label=%q]", label)
}

func isOther(el *rod.Element) bool {
	return attr(el, "data-value") == otherValue ||
		attr(el, "data-answer-value") == otherValue ||
		attr(el, "aria-label") == otherAriaLabel
}

// choiceLabel is the accessible label of a radio or checkbox, falling back to its value.
func choiceLabel(el *rod.Element) string {
	for _, name := range []string{"aria-label", "data-value", "data-answer-value"} {
		if v := strings.TrimSpace(attr(el, name)); v != "" {
			return v
		}
	}
	return ""
}

// choiceLabels lists the choices under el and whether one of them is Other.
func choiceLabels(el *rod.Element, selector string) ([]string, bool) {
	found, err := el.Elements(selector)
	if err != nil {
		return nil, false
	}
	labels := make([]string, 0, len(found))
	other := false
	for _, c := range found {
		if isOther(c) {
			other = true
			continue
		}
		labels = append(labels, choiceLabel(c))
	}
	return uniqueNonEmpty(labels), other
}

func dropdownOptions(el *rod.Element, selector string) []string {
	found, err := el.Elements(selector)
	if err != nil {
		return nil
	}
	values := make([]string, 0, len(found))
	for _, o := range found {
		values = append(values, attr(o, "data-value"))
	}
	return uniqueNonEmpty(values)
}

func typeInto(el *rod.Element, selector, text string) error {
	ok, input, err := el.Has(selector)
	if err != nil || !ok {
		return fmt.Errorf("input %q not found: %w", selector, errors.Join(err, errMissing))
	}
	if err := click(input); err != nil {
		return err
	}
	_ = input.SelectAllText()
	if err := input.Input(text); err != nil {
		return fmt.Errorf("failed to type answer: %w", err)
	}
	return nil
}

func fillByLabel(el *rod.Element, labels, values []string) error {
	for i, label := range labels {
		if err := typeInto(el, ariaInput(label), values[i]); err != nil {
			return err
		}
	}
	return nil
}

func flatten(parts []form.Part) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
