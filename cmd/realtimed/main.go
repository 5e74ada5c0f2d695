// realtimed runs the realtime stack against a backend and prints
// connection status transitions until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/jaajung-kjs/realtime-core/app"
	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build info (set via ldflags)
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	flagConfig    string
	flagEnvPrefix string
	flagURL       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "realtimed",
		Short: "Realtime connection daemon",
		Long: `realtimed maintains a realtime connection to a backend, keeps
topic subscriptions alive across reconnects, and reports cache
invalidations derived from change events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	rootCmd.Flags().StringVar(&flagEnvPrefix, "env-prefix", "REALTIME", "environment variable prefix")
	rootCmd.Flags().StringVar(&flagURL, "url", "", "backend websocket URL (overrides config)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("realtimed v{{.Version}} (build: " + Build + ")\n")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	defaults := map[string]interface{}{}
	if flagURL != "" {
		defaults["transport.url"] = flagURL
	}

	a := app.New(
		app.WithName("realtimed"),
		app.WithVersion(Version),
		app.WithConfigFile(flagConfig),
		app.WithEnvPrefix(flagEnvPrefix),
		app.WithDefaults(defaults),
		app.WithOnReady(watchStatus),
	)
	return a.Run()
}

// watchStatus logs every connection state transition for the lifetime
// of the daemon.
func watchStatus(a *app.App) error {
	core := a.Core()
	if core == nil {
		return fmt.Errorf("connection core not available")
	}

	log := a.Logger()
	core.Subscribe(func(st connection.Status) {
		fields := []zap.Field{
			zap.String("state", st.State.String()),
			zap.Bool("visible", st.Visible),
			zap.Int("reconnect_attempts", st.ReconnectAttempts),
			zap.Int64("epoch", st.Epoch),
		}
		if st.LastError != nil {
			fields = append(fields, zap.Error(st.LastError))
		}
		log.Info("connection status", fields...)
	})
	return nil
}
