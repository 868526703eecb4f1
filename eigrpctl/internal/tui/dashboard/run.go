package dashboard

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the dashboard until the user quits or ctx is done. The daemon is
// polled every opts.Interval.
func Run(ctx context.Context, opts Options) error {
	if opts.Fetcher == nil {
		opts.Fetcher = SocketFetcher{Path: opts.Socket}
	}
	m := NewModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	pollCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		ctx := pollCtx
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if msg := m.Refresh()(); msg != nil {
				p.Send(msg)
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
