// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the live renderer
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI and blocks until the user quits or ctx ends
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		// Cancelled from outside; the program was killed on purpose.
		return nil
	}
	return err
}
