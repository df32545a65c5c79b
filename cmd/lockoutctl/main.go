// Command lockoutctl inspects and clears account lockouts in the shared Redis
// store without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CherreraTEG/OneSite/internal/lockout"
	lockoutstore "github.com/CherreraTEG/OneSite/internal/lockout/store"
	"github.com/CherreraTEG/OneSite/internal/platform/config"
	"github.com/CherreraTEG/OneSite/internal/platform/logger"
	"github.com/CherreraTEG/OneSite/internal/platform/redis"
)

var outputFormat string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lockoutctl",
		Short:         "Inspect and clear account lockouts",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")

	root.AddCommand(checkCmd(), listCmd(), clearCmd(), clearAllCmd())
	return root
}

// withTracker connects to the configured Redis and runs fn against it.
func withTracker(ctx context.Context, fn func(*lockout.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb == nil {
		return errors.New("REDIS_URL is not set; lockout state lives in Redis")
	}
	defer rdb.Close()

	svc, err := lockout.New(lockoutstore.NewRedisStore(rdb.Client),
		lockout.WithConfig(lockout.Config{
			MaxAttempts:   cfg.Lockout.MaxAttempts,
			AttemptWindow: cfg.Lockout.AttemptWindow,
			LockDuration:  cfg.Lockout.LockDuration,
		}),
		lockout.WithLogger(logger.NewWithWriter(os.Stderr, "lockoutctl", "warn")),
	)
	if err != nil {
		return err
	}
	return fn(svc)
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <principal>",
		Short: "Show the attempt record of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(svc *lockout.Service) error {
				status := svc.Status(cmd.Context(), args[0])
				return render(cmd.OutOrStdout(), status, func(w io.Writer) {
					fmt.Fprintln(w, "PRINCIPAL\tLOCKED\tFAILED\tMAX\tLOCK_SECONDS\tWINDOW_SECONDS")
					fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%d\n", status.Principal, status.Locked,
						status.FailedCount, status.MaxAttempts, status.LockSecondsRemaining,
						status.AttemptWindowSecondsRemaining)
				})
			})
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locked principals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(cmd.Context(), func(svc *lockout.Service) error {
				locked, err := svc.ListLocked(cmd.Context())
				if err != nil {
					return err
				}
				type row struct {
					Principal        string `json:"principal"`
					RemainingSeconds int    `json:"remaining_seconds"`
				}
				rows := make([]row, 0, len(locked))
				for _, acct := range locked {
					rows = append(rows, row{Principal: acct.Principal, RemainingSeconds: acct.RemainingSeconds()})
				}
				return render(cmd.OutOrStdout(), rows, func(w io.Writer) {
					fmt.Fprintln(w, "PRINCIPAL\tREMAINING_SECONDS")
					for _, r := range rows {
						fmt.Fprintf(w, "%s\t%d\n", r.Principal, r.RemainingSeconds)
					}
				})
			})
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <principal>",
		Short: "Clear the lock and failure counter of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(svc *lockout.Service) error {
				if err := svc.Unlock(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", lockout.NormalizePrincipal(args[0]))
				return nil
			})
		},
	}
}

func clearAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-all",
		Short: "Clear every active lock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to clear all locks without --yes")
			}
			return withTracker(cmd.Context(), func(svc *lockout.Service) error {
				n, err := svc.UnlockAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d locks\n", n)
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm clearing every lock")
	return cmd
}

func render(out io.Writer, v any, table func(io.Writer)) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table":
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		table(w)
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q", outputFormat)
	}
}
