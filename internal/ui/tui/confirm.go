package tui

import (
	"context"

	"github.com/charmbracelet/huh"
)

// Confirm asks a yes/no question. It defaults to no.
func Confirm(ctx context.Context, title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}
