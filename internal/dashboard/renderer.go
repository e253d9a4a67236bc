package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Renderer handles rendering responses.
type Renderer interface {
	RenderHealth(w io.Writer, pending int) error
	RenderStatus(w io.Writer, status Status) error
}

// JSONRenderer implements Renderer for JSON responses.
type JSONRenderer struct{}

// NewJSONRenderer creates a new JSON renderer.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

func (r *JSONRenderer) RenderHealth(w io.Writer, pending int) error {
	return json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"pending": pending,
	})
}

func (r *JSONRenderer) RenderStatus(w io.Writer, status Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

// TextRenderer implements Renderer as aligned plain text for terminals.
type TextRenderer struct{}

// NewTextRenderer creates a new text renderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) RenderHealth(w io.Writer, pending int) error {
	_, err := fmt.Fprintf(w, "ok (%d pending)\n", pending)
	return err
}

func (r *TextRenderer) RenderStatus(w io.Writer, status Status) error {
	if status.Pending == 0 {
		_, err := fmt.Fprintln(w, "No pending engagements.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tOWNER\tSTARRED\tAGE\tLEFT")
	for _, e := range status.Entries {
		left := fmt.Sprintf("%dd", e.DaysLeft)
		if e.DaysLeft <= 0 {
			left = "due"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dd\t%s\n", e.Repository, e.Owner, e.StarredOn, e.AgeDays, left)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d pending, grace period %d days\n", status.Pending, status.GracePeriodDays)
	return err
}
