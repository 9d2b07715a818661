package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"calmdsl/internal/config"
	calmerrors "calmdsl/internal/errors"
	"calmdsl/internal/ui"
)

// version is set at build time via ldflags
var version = "dev"

var console = ui.NewConsole()

var rootCmd = &cobra.Command{
	Use:     "calm",
	Short:   "calm - compile and manage Nutanix Calm blueprints and runbooks",
	Version: version,
	Long: `calm compiles blueprints, runbooks, endpoints, projects and environments
written in a YAML DSL into Calm payloads, and manages them on Prism Central:
create, launch, run, export and delete entities, or apply a DSL file end to end.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default is $CALM_HOME/config.yaml)")
	flags.BoolP("verbose", "v", false, "Log debug output")
	flags.String("host", "", "Prism Central host")
	flags.Int("port", 0, "Prism Central port")
	flags.String("username", "", "Prism Central username")
	flags.String("password", "", "Prism Central password")
	flags.String("project", "", "Default project for created entities")
}

// loadConfig reads the config file and applies the connection flags over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, calmerrors.NewConfigError("Failed to load configuration", err.Error(),
			"Check the file given with --config, or run 'calm config show'", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("username") {
		cfg.Server.Username, _ = flags.GetString("username")
	}
	if flags.Changed("password") {
		cfg.Server.Password, _ = flags.GetString("password")
	}
	if flags.Changed("project") {
		cfg.Project.Name, _ = flags.GetString("project")
	}
	return cfg, nil
}

// mustConfig is loadConfig for commands that talk to the server: the
// connection settings must validate.
func mustConfig(cmd *cobra.Command) *config.Config {
	cfg, err := loadConfig(cmd)
	exitOnError(err)
	if err := cfg.Validate(); err != nil {
		exitOnError(calmerrors.NewConfigError("Invalid configuration", err.Error(),
			"Set the missing values with 'calm config set' or the CALM_* environment variables", err))
	}
	return cfg
}

// exitOnError reports err and exits. It does nothing for a nil error.
func exitOnError(err error) {
	if err == nil {
		return
	}
	calmerrors.HandleError(err)
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
