package watch

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/btouchard/beacon/internal/task"
)

var (
	colorYellow = lipgloss.Color("#E5C07B")
	colorBlue   = lipgloss.Color("#61AFEF")
	colorGreen  = lipgloss.Color("#98C379")
	colorMuted  = lipgloss.Color("#636B78")
	colorRed    = lipgloss.Color("#E06C75")
)

// styles renders watcher output. Colors degrade to plain text when out is
// not a terminal.
type styles struct {
	time   lipgloss.Style
	taskID lipgloss.Style
	title  lipgloss.Style
	status map[task.Status]lipgloss.Style
	dim    lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		time:   r.NewStyle().Foreground(colorMuted),
		taskID: r.NewStyle().Bold(true).Width(16),
		title:  r.NewStyle().Bold(true).Foreground(colorRed),
		dim:    r.NewStyle().Foreground(colorMuted),
		status: map[task.Status]lipgloss.Style{
			task.StatusInProgress: r.NewStyle().Foreground(colorYellow),
			task.StatusInReview:   r.NewStyle().Foreground(colorBlue).Bold(true),
			task.StatusDone:       r.NewStyle().Foreground(colorGreen).Bold(true),
			task.StatusCanceled:   r.NewStyle().Foreground(colorMuted),
		},
	}
}

func (s styles) statusText(st task.Status) string {
	if style, ok := s.status[st]; ok {
		return style.Render(string(st))
	}
	return string(st)
}
