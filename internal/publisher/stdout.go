package publisher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ryosukesatoh/arxiv-digest/internal/report"
)

var (
	subjectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0969DA")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#39D353")).Bold(true)
	linkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#58A6FF")).Underline(true)
	delimiterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E7681"))
)

// StdoutPublisher prints the plain-text report. On a terminal the same text
// is printed with styled titles, links and delimiters.
type StdoutPublisher struct {
	out    io.Writer
	styled bool
}

// NewWriterPublisher prints to w, styling only when w is a terminal.
func NewWriterPublisher(w io.Writer) *StdoutPublisher {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &StdoutPublisher{out: w, styled: styled}
}

func (p *StdoutPublisher) Publish(_ context.Context, rep *report.Report) error {
	text := rep.Text
	if p.styled {
		text = styledText(rep)
	}
	if _, err := io.WriteString(p.out, text); err != nil {
		return fmt.Errorf("stdout: failed to write report: %w", err)
	}
	return nil
}

func styledText(rep *report.Report) string {
	delim := delimiterStyle.Render(report.Delimiter) + "\n"

	s := subjectStyle.Render(rep.Subject) + "\n\n"
	s += fmt.Sprintf("Dear %s,\n", rep.Name)
	s += rep.Summary() + "\n"
	s += delim
	for _, e := range rep.Entries {
		s += titleStyle.Render(e.Title) + "\n\n"
		s += e.Abstract + "\n"
		s += linkStyle.Render(e.URL) + "\n"
		s += delim
	}
	return s
}
