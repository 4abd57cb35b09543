// ABOUTME: Confirmation prompt for destructive requests, built on huh
// ABOUTME: The delete command runs this unless --yes skips it

package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// ConfirmDelete asks before a DELETE leaves the machine. Aborting the prompt
// counts as declining.
func ConfirmDelete(path string) (bool, error) {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %s?", path)).
				Description("The record is removed on the server.").
				Affirmative("Delete").
				Negative("Keep").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return confirmed, nil
}
