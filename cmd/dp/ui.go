package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	cl "darkpool/internal/cli"
	"darkpool/internal/game"

	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// printMagicLink renders a QR code so the session can be re-entered from a
// phone. Skipped when stdout is not a terminal.
func printMagicLink(baseURL, token string) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	link := strings.TrimRight(baseURL, "/") + "/v1/dashboard?token=" + token
	fmt.Println()
	printInfo("Scan to reconnect from another device:")
	qrterminal.GenerateWithConfig(link, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
}

func printActionResult(out cl.ActionResult) {
	if strings.TrimSpace(out.Message) != "" {
		printSuccess(out.Message)
	}
	if out.Dashboard != nil {
		printDashboard(out.Dashboard)
	}
}

func printDashboard(v *game.PlayerView) {
	accent.Printf("\n== DARK POOL | hour %d/%d | %s ==\n", v.Hour, game.RoundHours, strings.ToUpper(string(v.Phase)))
	fmt.Printf("Trader:     %s (%s)\n", v.DisplayName, v.Role)
	fmt.Printf("Status:     %s\n", statusLine(v.StatusSummary))
	fmt.Printf("Price:      %s\n", formatMoney(v.Price))
	fmt.Printf("Cash:       %s\n", formatMoney(v.Cash))
	if v.FrozenCash > 0 {
		fmt.Printf("Frozen:     %s (short margin)\n", formatMoney(v.FrozenCash))
		fmt.Printf("Available:  %s\n", formatMoney(v.AvailableCash))
	}
	fmt.Printf("Position:   %s shares\n", colorizeShares(v.Position))
	if v.Debt > 0 {
		fmt.Printf("Debt:       %s\n", danger.Sprint(formatMoney(v.Debt)))
	}
	fmt.Printf("Net Worth:  %s\n", colorizeMoney(v.NetWorth, game.StartingCash))
	if v.RiskRatio > 0 && v.RiskRatio < 999 {
		fmt.Printf("Risk Ratio: %s\n", colorizeRisk(v.RiskRatio))
	}
	if v.TrendInfo != "" {
		fmt.Printf("Market:     %s\n", v.TrendInfo)
	}
	if v.BuyHint != "" {
		fmt.Printf("Buy Hint:   %s\n", v.BuyHint)
	}
	if v.SellHint != "" {
		fmt.Printf("Sell Hint:  %s\n", v.SellHint)
	}

	if len(v.PersonalLog) > 0 {
		fmt.Println()
		accent.Println("Your Activity")
		for _, line := range v.PersonalLog {
			printInfo("  " + line)
		}
	}

	if len(v.SystemLogs) > 0 {
		fmt.Println()
		accent.Println("Market Feed")
		for _, line := range v.SystemLogs {
			printInfo("  " + line)
		}
	}

	if len(v.ChatLogs) > 0 {
		fmt.Println()
		accent.Println("Trader Chat")
		for _, line := range v.ChatLogs {
			printInfo("  " + line)
		}
	}

	if len(v.Online) > 0 {
		fmt.Println()
		accent.Println("Traders at the Table")
		printInfo("  " + strings.Join(v.Online, ", "))
	}

	if len(v.Leaderboard) > 0 {
		fmt.Println()
		printLeaderboard(v.Leaderboard)
	}
	fmt.Println()
}

func printLeaderboard(rows []game.LeaderboardRow) {
	accent.Println("Final Standings")
	fmt.Printf("%-6s %-18s %-14s %16s\n", "RANK", "TRADER", "ROLE", "CASH")
	for _, row := range rows {
		name := truncate(row.Name, 18)
		if row.Bankrupt {
			name = danger.Sprint(name + " †")
		}
		fmt.Printf("%-6d %-18s %-14s %16s\n", row.Rank, name, row.Role, formatMoney(row.Cash))
	}
}

func printAdminOverview(v *game.AdminView) {
	accent.Printf("\n== ADMIN | %s ==\n", v.PhaseSummary)
	fmt.Printf("Price:          %s\n", formatMoney(v.Price))
	fmt.Printf("Trend:          %+.4f\n", v.Trend)
	fmt.Printf("Momentum:       %+.4f\n", v.Momentum)
	fmt.Printf("Short Pressure: %.4f\n", v.ShortPressure)

	fmt.Println()
	accent.Println("Players")
	if len(v.Players) == 0 {
		printInfo("No players registered.")
	} else {
		fmt.Printf("%-18s %-14s %14s %10s %12s %14s %-24s\n", "TRADER", "ROLE", "CASH", "POS", "DEBT", "NET WORTH", "STATUS")
		for _, p := range v.Players {
			fmt.Printf("%-18s %-14s %14s %10s %12s %14s %-24s\n",
				truncate(p.Name, 18),
				p.Role,
				formatMoney(p.Cash),
				colorizeShares(p.Position),
				formatMoney(p.Debt),
				formatMoney(p.NetWorth),
				truncate(p.Status, 24),
			)
		}
	}

	if len(v.SystemLogs) > 0 {
		fmt.Println()
		accent.Println("System Log")
		for _, line := range v.SystemLogs {
			printInfo("  " + line)
		}
	}
	fmt.Println()
}

func statusLine(summary string) string {
	lower := strings.ToLower(summary)
	switch {
	case strings.Contains(lower, "liquidated") || strings.Contains(lower, "near liquidation"):
		return danger.Sprint(summary)
	case strings.Contains(lower, "margin") || strings.Contains(lower, "frozen") ||
		strings.Contains(lower, "debt") || strings.Contains(lower, "cooldown"):
		return warn.Sprint(summary)
	default:
		return neutral.Sprint(summary)
	}
}

func colorizeShares(v int64) string {
	text := strconv.FormatInt(v, 10)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizeMoney(v, baseline float64) string {
	text := formatMoney(v)
	switch {
	case v > baseline:
		return success.Sprint(text)
	case v < baseline:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizeRisk(v float64) string {
	text := fmt.Sprintf("%.2f", v)
	switch {
	case v < game.MaintenanceMargin:
		return danger.Sprint(text)
	case v < 1.30:
		return warn.Sprint(text)
	default:
		return success.Sprint(text)
	}
}

func formatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := int64(v)
	frac := int64((v-float64(whole))*100 + 0.5)
	if frac >= 100 {
		whole++
		frac = 0
	}
	return fmt.Sprintf("%s$%s.%02d", sign, comma(whole), frac)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
