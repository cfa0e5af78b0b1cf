package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"diffai/internal/classify"
	"diffai/internal/diff"
	"diffai/internal/tensor"
)

// HumanRenderer writes the diffai-style line format: added entries in
// green, removed in red, modifications in cyan, type changes and
// degraded records in yellow.
type HumanRenderer struct {
	w io.Writer

	add    *color.Color
	remove *color.Color
	change *color.Color
	notice *color.Color
}

// NewHumanRenderer creates a renderer. Color is dropped when noColor is
// set or when w is not a terminal.
func NewHumanRenderer(w io.Writer, noColor bool) *HumanRenderer {
	h := &HumanRenderer{
		w:      w,
		add:    color.New(color.FgGreen),
		remove: color.New(color.FgRed),
		change: color.New(color.FgCyan),
		notice: color.New(color.FgYellow),
	}
	if noColor || !writerIsTerminal(w) {
		for _, c := range []*color.Color{h.add, h.remove, h.change, h.notice} {
			c.DisableColor()
		}
	}
	return h
}

// ForceColor re-enables color regardless of terminal detection, for
// callers configured with an explicit always-color mode.
func (h *HumanRenderer) ForceColor() *HumanRenderer {
	for _, c := range []*color.Color{h.add, h.remove, h.change, h.notice} {
		c.EnableColor()
	}
	return h
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Render writes one line per record, then warnings and findings.
func (h *HumanRenderer) Render(report *diff.Report, findings []classify.Finding) {
	for _, r := range report.Results {
		h.renderResult(r)
	}

	for _, w := range report.Warnings {
		_, _ = h.notice.Fprintf(h.w, "  warning: %s (%s)\n", w.Message, w.Code)
	}

	if len(findings) > 0 {
		_, _ = fmt.Fprintln(h.w)
		for _, f := range findings {
			line := fmt.Sprintf("  [%s] %s", f.Severity, f.Label)
			if f.Path != "" {
				line += " " + f.Path
			}
			line += ": " + f.Message
			_, _ = h.notice.Fprintln(h.w, line)
		}
	}
}

func (h *HumanRenderer) renderResult(r diff.Result) {
	switch r.Kind {
	case diff.KindAdded:
		_, _ = h.add.Fprintf(h.w, "  + %s: %s\n", r.Path, formatScalar(r.New))
	case diff.KindRemoved:
		_, _ = h.remove.Fprintf(h.w, "  - %s: %s\n", r.Path, formatScalar(r.Old))
	case diff.KindModified:
		_, _ = h.change.Fprintf(h.w, "  ~ %s: %s -> %s\n",
			r.Path, formatScalar(r.Old), formatScalar(r.New))
	case diff.KindTypeChanged:
		_, _ = h.notice.Fprintf(h.w, "  ! %s: %s -> %s\n", r.Path, r.OldType, r.NewType)
	case diff.KindTensorShapeChanged:
		_, _ = h.change.Fprintf(h.w, "  ~ %s shape: %s -> %s\n",
			r.Path, formatShape(r.OldShape), formatShape(r.NewShape))
	case diff.KindTensorStatsChanged:
		_, _ = h.change.Fprintf(h.w, "  ~ %s stats: %s -> %s\n",
			r.Path, formatStats(r.OldStats), formatStats(r.NewStats))
	case diff.KindTensorAdded:
		_, _ = h.add.Fprintf(h.w, "  + %s: tensor %s\n", r.Path, formatTensorSummary(r.Stats))
	case diff.KindTensorRemoved:
		_, _ = h.remove.Fprintf(h.w, "  - %s: tensor %s\n", r.Path, formatTensorSummary(r.Stats))
	case diff.KindTensorUnreadable:
		_, _ = h.notice.Fprintf(h.w, "  ! %s: unreadable tensor (%s)\n", r.Path, r.Reason)
	}
}

// formatScalar renders a plain-Go value as compact JSON with normalized
// floats, falling back to fmt for anything JSON rejects.
func formatScalar(v interface{}) string {
	if f, ok := v.(float64); ok {
		return FormatFloat(f)
	}
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func formatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatStats(s *tensor.Stats) string {
	if s == nil {
		return "?"
	}
	return fmt.Sprintf("mean=%s std=%s min=%s max=%s",
		FormatFloat(s.Mean), FormatFloat(s.Std), FormatFloat(s.Min), FormatFloat(s.Max))
}

func formatTensorSummary(s *tensor.Stats) string {
	if s == nil {
		return "?"
	}
	return fmt.Sprintf("%s %s params=%d", s.DType, formatShape(s.Shape), s.TotalParams)
}
