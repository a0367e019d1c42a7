package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-agentmesh/internal/bridge"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

var (
	runUser       string
	runPersona    string
	runDeliver    []string
	digestCount   bool
	sessionsLimit int
	statsFrom     string
	statsTo       string
)

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "cli", "userId recorded in the session")
	runCmd.Flags().StringVar(&runPersona, "persona", "", "persona context passed to every agent")
	runCmd.Flags().StringSliceVar(&runDeliver, "deliverable", nil, "required deliverable (repeatable)")
	digestCmd.Flags().BoolVar(&digestCount, "count", false, "short team summary instead of asking every agent")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 10, "number of recent sessions")
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "period start, RFC3339 (default: 30 days ago)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "period end, RFC3339 (default: now)")
}

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Show which agents would handle a request, without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			plan, err := a.orch.Plan(ctx, map[string]interface{}{"userRequest": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), plan)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Plan and execute a request, recording a session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			payload := map[string]interface{}{
				"userRequest": strings.Join(args, " "),
				"userId":      runUser,
			}
			if runPersona != "" {
				payload["personaContext"] = runPersona
			}
			if len(runDeliver) > 0 {
				payload["requiredDeliverables"] = runDeliver
			}

			res := a.orch.Orchestrate(ctx, payload)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Status == domain.OrchestrationPlanFailed {
				return errors.New(res.Error)
			}
			return nil
		})
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List discovered agents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			descs, err := a.dir.Descriptors(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tSTATE")
			for _, d := range descs {
				state := "ready"
				if a.ks.IsBlocked(d.ID) {
					state = "blocked"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, a.dir.DisplayName(d.ID), d.Kind, state)
			}
			return tw.Flush()
		})
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Ask every agent for an elevator pitch and print the team digest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				text string
				err  error
			)
			if digestCount {
				text, err = a.orch.CountDigest(ctx)
			} else {
				text, err = a.orch.CapabilitiesDigest(ctx)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "Show recent sessions or the full history of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if len(args) == 1 {
				sess, err := a.journal.SessionHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sess)
			}
			sums, err := a.journal.RecentSessions(ctx, sessionsLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sums)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate session statistics for a period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := parseTimeFlag(statsFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parseTimeFlag(statsTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return printJSON(cmd.OutOrStdout(), a.journal.Stats(ctx, from, to))
		})
	},
}

var personaCmd = &cobra.Command{
	Use:   "persona-set <data-type> key=value...",
	Short: "Store persona data served by the secure data bridge (requires redis)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := make(map[string]string, len(args)-1)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("expected key=value, got %q", kv)
			}
			data[k] = v
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if a.rdb == nil {
				return fmt.Errorf("persona data is stored in redis: set redis.addr")
			}
			return bridge.NewRedisSource(a.rdb).Put(ctx, args[0], data)
		})
	},
}

func parseTimeFlag(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
