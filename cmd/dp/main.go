package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "darkpool/internal/cli"
	"darkpool/internal/config"
	"darkpool/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()

	root := &cobra.Command{
		Use:          "dp",
		Short:        "Dark Pool trading terminal",
		SilenceUsage: true,
	}

	root.AddCommand(
		newJoinCmd(cfg),
		newLogoutCmd(),
		newDashCmd(cfg),
		newBuyCmd(cfg),
		newSellCmd(cfg),
		newIntelCmd(cfg),
		newLoanCmd(cfg),
		newSayCmd(cfg),
		newSyncCmd(cfg),
		newWatchCmd(cfg),
		newAdminCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg config.CLIConfig) *cl.Client {
	return cl.NewClient(cfg.APIBaseURL, cfg.AdminKey)
}

func actionContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newJoinCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Register for the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			name, err := promptRequired("Trader handle")
			if err != nil {
				return err
			}

			ctx, cancel := actionContext(cmd)
			defer cancel()
			out, err := newClient(cfg).Register(ctx, email, name)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{Token: out.Token, Email: email, DisplayName: name}); err != nil {
				return err
			}
			printSuccess(out.Message + ". Session saved.")
			printMagicLink(cfg.APIBaseURL, out.Token)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Session cleared.")
			return nil
		},
	}
}

func newDashCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show your trading dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			view, err := newClient(cfg).Dashboard(ctx, session.Token)
			if err != nil {
				return err
			}
			printDashboard(&view)
			return nil
		},
	}
}

func newBuyCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <quantity>",
		Short: "Buy shares (5% fee)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parsePositiveInt(args[0], "quantity")
			if err != nil {
				return err
			}
			return runAction(cmd, cfg, "/v1/actions/buy", map[string]any{"quantity": qty})
		},
	}
}

func newSellCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sell <quantity>",
		Short: "Sell or short shares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parsePositiveInt(args[0], "quantity")
			if err != nil {
				return err
			}
			return runAction(cmd, cfg, "/v1/actions/sell", map[string]any{"quantity": qty})
		},
	}
}

func newIntelCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "intel <up|down>",
		Short: "Buy sentiment intel ($5000) to nudge the market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := strings.ToLower(strings.TrimSpace(args[0]))
			if direction != "up" && direction != "down" {
				return fmt.Errorf("direction must be up or down")
			}
			return runAction(cmd, cfg, "/v1/actions/intel", map[string]any{"direction": direction})
		},
	}
}

func newLoanCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "loan <amount>",
		Short: "Take a loan (30% interest, limit 90% of cash)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parsePositiveInt(args[0], "amount")
			if err != nil {
				return err
			}
			return runAction(cmd, cfg, "/v1/actions/loan", map[string]any{"amount": amount})
		},
	}
}

func newSayCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "say <message>",
		Short: "Post to the trader chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			return runAction(cmd, cfg, "/v1/messages", map[string]any{"text": text})
		},
	}
}

func newSyncCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay actions queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Offline queue is empty.")
				return nil
			}

			c := newClient(cfg)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				out, err := c.Action(ctx, session.Token, q.Path, q.Body, q.IdempotencyKey)
				if err != nil {
					remaining = append(remaining, q)
					printWarn(fmt.Sprintf("replay failed for %s %s: %v", q.Method, q.Path, err))
					continue
				}
				replayed++
				if strings.TrimSpace(out.Message) != "" {
					printInfo("  " + out.Message)
				}
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

func newAdminCmd(cfg config.CLIConfig) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "God-mode controls",
	}
	admin.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Force-start the round",
			RunE:  adminRunE(cfg, func(ctx context.Context, c *cl.Client) (map[string]any, error) { return c.AdminStart(ctx) }),
		},
		&cobra.Command{
			Use:   "advance",
			Short: "Advance one simulated hour",
			RunE:  adminRunE(cfg, func(ctx context.Context, c *cl.Client) (map[string]any, error) { return c.AdminAdvance(ctx) }),
		},
		&cobra.Command{
			Use:   "ff",
			Short: "Fast-forward to settlement",
			RunE:  adminRunE(cfg, func(ctx context.Context, c *cl.Client) (map[string]any, error) { return c.AdminFastForward(ctx) }),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Prepare the next round",
			RunE:  adminRunE(cfg, func(ctx context.Context, c *cl.Client) (map[string]any, error) { return c.AdminReset(ctx) }),
		},
		&cobra.Command{
			Use:   "overview",
			Short: "Full table overview",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := actionContext(cmd)
				defer cancel()
				view, err := newClient(cfg).AdminOverview(ctx)
				if err != nil {
					return err
				}
				printAdminOverview(&view)
				return nil
			},
		},
	)
	return admin
}

func adminRunE(cfg config.CLIConfig, call func(ctx context.Context, c *cl.Client) (map[string]any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := actionContext(cmd)
		defer cancel()
		out, err := call(ctx, newClient(cfg))
		if err != nil {
			return err
		}
		if msg, ok := out["message"].(string); ok {
			printSuccess(msg)
		}
		return nil
	}
}

// runAction posts one player action. When the API is unreachable the command
// goes into the offline queue under a fresh idempotency key, so `dp sync`
// can replay it without risking a double execution.
func runAction(cmd *cobra.Command, cfg config.CLIConfig, path string, body map[string]any) error {
	session, err := cl.LoadSession()
	if err != nil {
		return err
	}
	ctx, cancel := actionContext(cmd)
	defer cancel()

	idem := uuid.NewString()
	out, err := newClient(cfg).Action(ctx, session.Token, path, body, idem)
	if err != nil {
		return queueOnNetworkError(err, syncq.Command{
			Method:         http.MethodPost,
			Path:           path,
			Body:           body,
			IdempotencyKey: idem,
		})
	}
	printActionResult(out)
	return nil
}

// queueOnNetworkError buffers a command that failed in transit. Structured
// API errors are surfaced as-is: the server saw the request and rejected it,
// so replaying would only repeat the rejection.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if isAPIStructuredError(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %v (%w)", qerr, err)
	}
	printWarn("API unreachable. Action queued, run `dp sync` when back online.")
	return nil
}

func isAPIStructuredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "api status")
}

func parsePositiveInt(raw, name string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}
