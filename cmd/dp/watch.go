package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	cl "darkpool/internal/cli"
	"darkpool/internal/config"
	"darkpool/internal/game"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const watchRefresh = 5 * time.Second

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	watchPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	watchUpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	watchDownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	watchDimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	watchErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func newWatchCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard (refreshes every few seconds)",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			m := newWatchModel(newClient(cfg), session.Token)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

type watchTickMsg time.Time

type watchViewMsg struct {
	view game.PlayerView
	err  error
}

type watchModel struct {
	client *cl.Client
	token  string

	view    game.PlayerView
	lastErr error
	loaded  bool

	board table.Model
}

func newWatchModel(client *cl.Client, token string) watchModel {
	board := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Trader", Width: 18},
			{Title: "Role", Width: 13},
			{Title: "Cash", Width: 16},
		}),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Selected = styles.Cell
	board.SetStyles(styles)
	return watchModel{client: client, token: token, board: board}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), watchTick())
}

func watchTick() tea.Cmd {
	return tea.Tick(watchRefresh, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchRefresh)
		defer cancel()
		view, err := m.client.Dashboard(ctx, m.token)
		return watchViewMsg{view: view, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case watchTickMsg:
		return m, tea.Batch(m.fetch(), watchTick())
	case watchViewMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.view = msg.view
			m.loaded = true
			m.board.SetRows(leaderboardRows(msg.view.Leaderboard))
		}
		return m, nil
	}
	return m, nil
}

func leaderboardRows(rows []game.LeaderboardRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		name := r.Name
		if r.Bankrupt {
			name += " (bust)"
		}
		out = append(out, table.Row{
			fmt.Sprintf("%d", r.Rank),
			name,
			string(r.Role),
			formatMoney(r.Cash),
		})
	}
	return out
}

func (m watchModel) View() string {
	if !m.loaded {
		if m.lastErr != nil {
			return watchErrStyle.Render("connection failed: "+m.lastErr.Error()) + "\n" + watchDimStyle.Render("retrying... press q to quit")
		}
		return watchDimStyle.Render("connecting...")
	}
	v := m.view

	title := watchTitleStyle.Render(fmt.Sprintf("DARK POOL  hour %d/%d  %s", v.Hour, game.RoundHours, strings.ToUpper(string(v.Phase))))

	account := watchPanelStyle.Render(strings.Join([]string{
		watchTitleStyle.Render(v.DisplayName) + watchDimStyle.Render("  "+string(v.Role)),
		"status    " + v.StatusSummary,
		"price     " + formatMoney(v.Price),
		"cash      " + formatMoney(v.Cash),
		"position  " + fmt.Sprintf("%d", v.Position),
		"debt      " + formatMoney(v.Debt),
		"net worth " + formatMoney(v.NetWorth),
	}, "\n"))

	chart := watchPanelStyle.Render(watchTitleStyle.Render("Price") + "\n" + sparkline(v.ChartSeries))

	feed := watchPanelStyle.Render(watchTitleStyle.Render("Market Feed") + "\n" + joinOrDash(v.SystemLogs))
	chat := watchPanelStyle.Render(watchTitleStyle.Render("Trader Chat") + "\n" + joinOrDash(v.ChatLogs))

	sections := []string{title, lipgloss.JoinHorizontal(lipgloss.Top, account, chart), feed, chat}

	if len(v.Leaderboard) > 0 {
		sections = append(sections, watchPanelStyle.Render(watchTitleStyle.Render("Final Standings")+"\n"+m.board.View()))
	}

	footer := watchDimStyle.Render("r refresh · q quit")
	if m.lastErr != nil {
		footer = watchErrStyle.Render("stale: "+m.lastErr.Error()) + "  " + footer
	}
	sections = append(sections, footer)

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func joinOrDash(lines []string) string {
	if len(lines) == 0 {
		return watchDimStyle.Render("(quiet)")
	}
	return strings.Join(lines, "\n")
}

// sparkline draws hourly closes as a bar chart, colored by direction.
func sparkline(bars []game.Bar) string {
	if len(bars) == 0 {
		return watchDimStyle.Render("(no candles yet)")
	}
	lo, hi := bars[0].Close, bars[0].Close
	for _, b := range bars {
		if b.Close < lo {
			lo = b.Close
		}
		if b.Close > hi {
			hi = b.Close
		}
	}
	blocks := []rune("▁▂▃▄▅▆▇█")
	var b strings.Builder
	for _, bar := range bars {
		idx := 0
		if hi > lo {
			idx = int((bar.Close - lo) / (hi - lo) * float64(len(blocks)-1))
		}
		ch := string(blocks[idx])
		if bar.Close >= bar.Open {
			b.WriteString(watchUpStyle.Render(ch))
		} else {
			b.WriteString(watchDownStyle.Render(ch))
		}
	}
	b.WriteString(fmt.Sprintf("\nlast %s  range %s..%s", formatMoney(bars[len(bars)-1].Close), formatMoney(lo), formatMoney(hi)))
	return b.String()
}
