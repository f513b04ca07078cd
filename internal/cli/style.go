package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/studygen-go/internal/models"
)

// Theme holds the color scheme for CLI output.
type Theme struct {
	Pending lipgloss.Color
	Running lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Pending: lipgloss.Color("#D7AF00"), // yellow
	Running: lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// statusLabel renders a job status with its phase color.
func (t Theme) statusLabel(status models.JobStatus) string {
	var color lipgloss.Color
	switch status {
	case models.StatusPending:
		color = t.Pending
	case models.StatusCompleted:
		color = t.Success
	case models.StatusFailed:
		color = t.Error
	default:
		color = t.Running
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(status))
}

// progressBar renders a fixed-width textual progress bar.
func progressBar(progress, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * width / 100
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return fmt.Sprintf("%s %3d%%", bar, progress)
}

// discardLogger returns a logger for CLI paths: quiet by default, text to
// stderr under --verbose.
func discardLogger() *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
