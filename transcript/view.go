package transcript

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Viewer renders transcripts as text.
type Viewer struct{}

// NewViewer creates a viewer.
func NewViewer() *Viewer {
	return &Viewer{}
}

// ViewFull writes the header and every turn.
func (v *Viewer) ViewFull(w io.Writer, t *Transcript) error {
	v.writeHeader(w, t)
	for _, turn := range t.Turns {
		v.writeTurn(w, turn)
	}
	return nil
}

// ViewSummary writes the header and a one-line preview per turn.
func (v *Viewer) ViewSummary(w io.Writer, t *Transcript) error {
	v.writeHeader(w, t)

	fmt.Fprintln(w, "\nTurn Summary:")
	for _, turn := range t.Turns {
		preview := strings.ReplaceAll(truncate(turn.Content, 100), "\n", " ")
		fmt.Fprintf(w, "  [%d] %s %s: %s\n", turn.ID, turn.NodeID, turn.Role, preview)
	}
	return nil
}

func (v *Viewer) writeHeader(w io.Writer, t *Transcript) {
	sep := strings.Repeat("=", 60)

	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "Execution: %s\n", t.ExecutionID)
	fmt.Fprintf(w, "Graph: %s | Status: %s\n", t.Metadata.Graph, t.Metadata.Status)
	fmt.Fprintf(w, "Started: %s | Duration: %s\n",
		t.Metadata.StartedAt.Format("2006-01-02 15:04:05"),
		t.Duration().Round(time.Second))
	fmt.Fprintf(w, "Tokens: %d in / %d out\n", t.Metadata.TotalTokensIn, t.Metadata.TotalTokensOut)
	if t.Metadata.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", t.Metadata.Error)
	}
	fmt.Fprintln(w, sep)
}

func (v *Viewer) writeTurn(w io.Writer, turn Turn) {
	fmt.Fprintln(w)

	header := fmt.Sprintf("[%d] %s (%s)", turn.ID, strings.ToUpper(turn.Role), turn.Timestamp.Format("15:04:05"))
	if turn.NodeID != "" {
		header += " node=" + turn.NodeID
	}
	if turn.TokensIn > 0 {
		header += fmt.Sprintf(" [%d tokens in]", turn.TokensIn)
	}
	if turn.TokensOut > 0 {
		header += fmt.Sprintf(" [%d tokens out]", turn.TokensOut)
	}
	if turn.DurationMs > 0 {
		header += fmt.Sprintf(" [%dms]", turn.DurationMs)
	}

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, turn.Content)

	for _, tc := range turn.ToolCalls {
		fmt.Fprintf(w, "\n  Tool: %s\n", tc.Name)
		if tc.Input != nil {
			input, _ := json.MarshalIndent(tc.Input, "     ", "  ")
			fmt.Fprintf(w, "     Input: %s\n", input)
		}
		if tc.Output != "" {
			fmt.Fprintf(w, "     Output: %s\n", truncate(tc.Output, 200))
		}
		if tc.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", tc.Error)
		}
	}
}

// FormatMetaList writes one row per transcript.
func (v *Viewer) FormatMetaList(w io.Writer, metas []Meta) error {
	if len(metas) == 0 {
		fmt.Fprintln(w, "No transcripts found.")
		return nil
	}

	fmt.Fprintf(w, "%-32s %-16s %-10s %-17s %10s %6s\n",
		"EXECUTION", "GRAPH", "STATUS", "STARTED", "TOKENS", "TURNS")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, m := range metas {
		fmt.Fprintf(w, "%-32s %-16s %-10s %-17s %10s %6d\n",
			truncate(m.ExecutionID, 32),
			truncate(m.Graph, 16),
			m.Status,
			m.StartedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d/%d", m.TotalTokensIn, m.TotalTokensOut),
			m.TurnCount)
	}
	fmt.Fprintf(w, "\nTotal: %d\n", len(metas))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
