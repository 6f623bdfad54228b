package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrNoOptions is returned by Select when there is nothing to choose from.
var ErrNoOptions = errors.New("nothing to select")

// SelectOption represents an item in a selection list.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

func selectTemplates(withDetails bool) *promptui.SelectTemplates {
	t := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
	if withDetails {
		t.Details = `
{{ "Details:" | faint }}	{{ .Description }}`
	}
	return t
}

// Select prompts the user to pick one option and returns its Value.
func Select(label string, options []SelectOption) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: selectTemplates(options[0].Description != ""),
		Size:      10,
		Searcher: func(input string, index int) bool {
			return containsFold(options[index].Label, input)
		},
	}

	i, _, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}
