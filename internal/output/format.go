// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"todo/internal/tasksync"
)

// FormatTask formats one task line.
// Format: "{N:>4}  [x] {TITLE}" followed by "  [photo]" when the task has an
// image and "  @{LAT},{LON}" when it has a location.
func FormatTask(w io.Writer, num int, task tasksync.Task) {
	mark := " "
	if task.IsCompleted {
		mark = "x"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%4d  [%s] %s", num, mark, normalizeTitle(task.Title))
	if task.ImageURI != "" {
		b.WriteString("  [photo]")
	}
	if task.Location != nil {
		fmt.Fprintf(&b, "  @%.5f,%.5f", task.Location.Latitude, task.Location.Longitude)
	}
	fmt.Fprintln(w, b.String())
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
