package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "agentmesh",
	Short: "AgentMesh - orchestration core for a team of AI agents",
	Long: `AgentMesh plans which agents should handle a request, runs them in order,
and keeps a journal of every session and interaction.

Without a config file it runs on built-in agents and local files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	rootCmd.AddCommand(serveCmd, planCmd, runCmd, agentsCmd, digestCmd, sessionsCmd, statsCmd, personaCmd)
}

func main() {
	// SIGTERM отменяет контекст всех команд: serve уходит в graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withApp собирает ядро на время одной команды.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
