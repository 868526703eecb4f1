package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/tui"
)

type printer struct {
	out    io.Writer
	asJSON bool
	styled bool
}

func newPrinter(cmd *cobra.Command) (*printer, error) {
	format, _ := cmd.Flags().GetString("output")
	p := &printer{out: cmd.OutOrStdout()}
	switch format {
	case "", "table":
	case "json":
		p.asJSON = true
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	if f, ok := p.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.styled = true
	}
	return p, nil
}

// print writes v as JSON, or headers and rows as a table.
func (p *printer) print(v any, headers []string, rows [][]string) error {
	if p.asJSON {
		return p.json(v)
	}
	return p.table(headers, rows)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(headers []string, rows [][]string) error {
	if p.styled {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(tui.ColorMuted)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return tui.TableHeader
				}
				return tui.TableCell
			}).
			Headers(headers...).
			Rows(rows...)
		_, err := fmt.Fprintln(p.out, t.Render())
		return err
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, r := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	return w.Flush()
}

// message prints a one-line result in table mode and {"status": msg} as JSON.
func (p *printer) message(msg string) error {
	if p.asJSON {
		return p.json(map[string]string{"status": msg})
	}
	_, err := fmt.Fprintln(p.out, msg)
	return err
}
