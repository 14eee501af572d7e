package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/groupmix/smartsort/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for sorting groups.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering.
	// The stack captures the logger, so swap before building it.
	fileLogger, err := shared.NewFileLogger("./tmp/smartsort-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	st, err := r.buildStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	model := ui.NewModel(ctx, st.playlists, st.engine)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
