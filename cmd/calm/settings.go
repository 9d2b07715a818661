package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"calmdsl/internal/app"
	"calmdsl/internal/config"
	calmerrors "calmdsl/internal/errors"
	"calmdsl/internal/store"
	"calmdsl/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the CLI configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  "Set writes KEY=VALUE into the config file. Known keys: server.host, server.port, server.username, ...; run 'calm config show' to see them all.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.Set(path, args[0], args[1]); err != nil {
			exitOnError(calmerrors.NewConfigError(fmt.Sprintf("Failed to set %s", args[0]), err.Error(),
				"Known keys are listed by 'calm config show'", err))
		}
		console.PrintSuccess(fmt.Sprintf("✅ Set %s in %s", args[0], path))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration, secrets masked",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		cfg, err := loadConfig(cmd)
		exitOnError(err)
		shown := cfg.Redacted()

		if output == ui.FormatJSON {
			exitOnError(console.PrintJSON(shown))
			return
		}
		console.PrintKeyValues([][2]string{
			{"server.host", shown.Server.Host},
			{"server.port", strconv.Itoa(shown.Server.Port)},
			{"server.username", shown.Server.Username},
			{"server.password", shown.Server.Password},
			{"server.verify_tls", strconv.FormatBool(shown.Server.VerifyTLS)},
			{"server.timeout", shown.Server.Timeout.String()},
			{"server.retry_max", strconv.Itoa(shown.Server.RetryMax)},
			{"server.poll_interval", shown.Server.PollInterval.String()},
			{"server.poll_timeout", shown.Server.PollTimeout.String()},
			{"project.name", shown.Project.Name},
			{"scm.archive_dir", shown.SCM.ArchiveDir},
			{"scm.gitlab_url", shown.SCM.GitLabURL},
			{"scm.token", shown.SCM.Token},
			{"scm.namespace", shown.SCM.Namespace},
			{"scm.project", shown.SCM.Project},
			{"scm.visibility", shown.SCM.Visibility},
			{"lint.image", shown.Lint.Image},
			{"home", shown.Home},
		})
		if err := cfg.Validate(); err != nil {
			console.PrintWarning(err.Error())
		}
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh local data from the server",
}

var updateCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Refresh the local cache of platform entities",
	Long: `Cache lists the accounts, clusters, subnets, images, VPCs and other
platform entities of the server and stores them locally, so compiled payloads
carry resolved UUIDs.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig(cmd)
		client, err := app.NewProviderFactory(cfg).GetClient()
		exitOnError(err)

		path := store.DefaultPath(cfg.Home)
		s, err := store.Open(path)
		if err != nil {
			exitOnError(calmerrors.NewFileSystemError("Failed to open the entity cache", err.Error(),
				fmt.Sprintf("Check that %s is writable", path), err))
		}
		defer s.Close()

		result, syncErr := store.Sync(cmd.Context(), client, s, slog.Default())

		kinds := make([]string, 0, len(result.Counts))
		for k := range result.Counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		t := &ui.Table{Header: []string{"KIND", "ENTITIES"}}
		for _, k := range kinds {
			t.Append(k, strconv.Itoa(result.Counts[k]))
		}
		console.PrintTable(t)
		for _, k := range result.Skipped {
			console.PrintInfo(fmt.Sprintf("Skipped %s: not supported by this server", k))
		}
		if syncErr != nil {
			_ = s.Close()
			exitOnError(calmerrors.NewAPIError("Some collections could not be cached", syncErr.Error(),
				"Run with -v for details, then retry", syncErr))
		}
		console.PrintSuccess(fmt.Sprintf("✅ Cache updated for Calm %s (%s)", result.Version, path))
	},
}

func init() {
	configShowCmd.Flags().StringP("output", "o", ui.FormatTable, "Output format: table or json")
	configCmd.AddCommand(configSetCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)

	updateCmd.AddCommand(updateCacheCmd)
	rootCmd.AddCommand(updateCmd)
}
