// Package report persists finished rounds: a Markdown battle report on
// disk, and optionally a Postgres archive. Exports are best-effort; a
// failed write is logged by the caller, never fatal to the game.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"darkpool/internal/game"
)

// Exporter saves one settled round somewhere durable.
type Exporter interface {
	SaveRound(ctx context.Context, rep game.RoundReport) error
}

// FileWriter renders a Markdown battle report per round into a directory.
type FileWriter struct {
	Dir string
}

func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{Dir: dir}
}

func (w *FileWriter) SaveRound(_ context.Context, rep game.RoundReport) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("game_report_%s.md", rep.SettledAt.Format("20060102_150405"))
	path := filepath.Join(w.Dir, name)
	return os.WriteFile(path, []byte(Render(rep)), 0o644)
}

// Render produces the Markdown body of a round report.
func Render(rep game.RoundReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Dark Pool battle report, %s\n\n", rep.SettledAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Final price**: $%.2f\n\n", rep.FinalPrice)
	if rep.Narrative != "" {
		fmt.Fprintf(&b, "> %s\n\n", rep.Narrative)
	}

	b.WriteString("## Final leaderboard\n\n| Rank | Player | Role | Assets |\n|---|---|---|---|\n")
	for _, row := range rep.Leaderboard {
		icon := ""
		if row.Bankrupt {
			icon = " (bust)"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | $%.2f%s |\n", row.Rank, row.Name, row.Role, row.Cash, icon)
	}

	b.WriteString("\n## Hourly bars\n\n| Hour | Open | High | Low | Close | Volume |\n|---|---|---|---|---|---|\n")
	for _, bar := range rep.Bars {
		fmt.Fprintf(&b, "| %dh | %.2f | %.2f | %.2f | %.2f | %d |\n",
			bar.Hour, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}

	if len(rep.SystemLogs) > 0 {
		b.WriteString("\n## System log\n\n")
		for _, line := range rep.SystemLogs {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	if len(rep.ChatLogs) > 0 {
		b.WriteString("\n## Trader chat\n\n")
		for _, line := range rep.ChatLogs {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}

// Multi fans a round report out to several exporters, returning the first
// error after attempting all of them.
type Multi []Exporter

func (m Multi) SaveRound(ctx context.Context, rep game.RoundReport) error {
	var firstErr error
	for _, e := range m {
		if err := e.SaveRound(ctx, rep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
