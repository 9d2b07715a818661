package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"calmdsl/internal/api"
	"calmdsl/internal/app"
	calmerrors "calmdsl/internal/errors"
	"calmdsl/internal/ui"
)

// entityHandler returns the API handler for the kind argument of entity
// commands, singular or plural.
func entityHandler(client *api.Client, arg string) (*api.Resource, string) {
	switch strings.TrimSuffix(arg, "s") {
	case "bp", "blueprint":
		return client.Blueprints.Resource, "blueprint"
	case "app":
		return client.Applications.Resource, "app"
	case "runbook":
		return client.Runbooks.Resource, "runbook"
	case "endpoint":
		return client.Endpoints.Resource, "endpoint"
	case "project":
		return client.Projects, "project"
	default:
		exitOnError(fmt.Errorf("unknown kind %q, expected one of bp, app, runbook, endpoint, project", arg))
		return nil, ""
	}
}

func newClient(cmd *cobra.Command) *api.Client {
	client, err := app.NewProviderFactory(mustConfig(cmd)).GetClient()
	exitOnError(err)
	return client
}

// lookup returns the UUID of the entity named name.
func lookup(cmd *cobra.Command, r *api.Resource, kind, name string) string {
	id, err := r.GetUUIDByName(cmd.Context(), name)
	if errors.Is(err, api.ErrNotFound) {
		exitOnError(calmerrors.NewAPIError(fmt.Sprintf("No %s named '%s'", kind, name), err.Error(),
			fmt.Sprintf("List existing entities with 'calm get %ss'", kind), err))
	}
	exitOnError(apiError(fmt.Sprintf("Failed to look up %s '%s'", kind, name), err))
	return id
}

// apiError wraps a server failure with a suggestion based on its status.
func apiError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return calmerrors.NewAPIError(msg, apiErr.Message, calmerrors.StatusSuggestion(apiErr.Code), err)
	}
	return calmerrors.NewNetworkError(msg, err.Error(), "Check the server address and that it is reachable", err)
}

func projectName(e api.Entity) string {
	if e.Metadata.ProjectReference != nil {
		return e.Metadata.ProjectReference.Name
	}
	return ""
}

var getCmd = &cobra.Command{
	Use:   "get bps|apps|runbooks|endpoints|projects",
	Short: "List entities on the server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		output, _ := cmd.Flags().GetString("output")

		client := newClient(cmd)
		r, kind := entityHandler(client, args[0])
		params := api.ListParams{Length: limit, Offset: offset}
		if name != "" {
			params.Filter = "name==" + name
		}
		page, err := r.List(cmd.Context(), params)
		exitOnError(apiError(fmt.Sprintf("Failed to list %ss", kind), err))

		if output == ui.FormatJSON {
			exitOnError(console.PrintJSON(page.Entities))
			return
		}
		t := &ui.Table{Header: []string{"NAME", "UUID", "STATE", "PROJECT"}}
		for _, e := range page.Entities {
			t.Append(e.Metadata.Name, e.Metadata.UUID, e.Status.State, projectName(e))
		}
		console.PrintTable(t)
		if page.Metadata.TotalMatches > offset+len(page.Entities) {
			console.PrintInfo(fmt.Sprintf("Showing %d of %d, use --offset for more", len(page.Entities), page.Metadata.TotalMatches))
		}
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe bp|app|runbook|endpoint|project NAME",
	Short: "Show one entity",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		client := newClient(cmd)
		r, kind := entityHandler(client, args[0])
		id := lookup(cmd, r, kind, args[1])

		if output == ui.FormatJSON {
			doc, err := r.ReadRaw(cmd.Context(), id)
			exitOnError(apiError(fmt.Sprintf("Failed to read %s '%s'", kind, args[1]), err))
			exitOnError(console.PrintJSON(doc))
			return
		}

		e, err := r.Read(cmd.Context(), id)
		exitOnError(apiError(fmt.Sprintf("Failed to read %s '%s'", kind, args[1]), err))
		pairs := [][2]string{
			{"Name", e.Metadata.Name},
			{"UUID", e.Metadata.UUID},
			{"State", e.Status.State},
			{"Description", e.Status.Description},
			{"Project", projectName(*e)},
		}
		if e.Metadata.SpecVersion != nil {
			pairs = append(pairs, [2]string{"Spec version", strconv.Itoa(*e.Metadata.SpecVersion)})
		}
		for _, m := range e.Status.MessageList {
			pairs = append(pairs, [2]string{"Message", m.Reason + ": " + m.Message})
		}
		console.PrintKeyValues(pairs)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete bp|app|runbook|endpoint|project NAME",
	Short: "Delete an entity",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		r, kind := entityHandler(client, args[0])
		id := lookup(cmd, r, kind, args[1])

		exitOnError(apiError(fmt.Sprintf("Failed to delete %s '%s'", kind, args[1]), r.Delete(cmd.Context(), id)))
		console.PrintSuccess(fmt.Sprintf("✅ Deleted %s '%s' (%s)", kind, args[1], id))
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch bp NAME",
	Short: "Launch a blueprint as an application",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if args[0] != "bp" && args[0] != "blueprint" {
			exitOnError(fmt.Errorf("only blueprints can be launched, not %s", args[0]))
		}
		appName, _ := cmd.Flags().GetString("app-name")
		profile, _ := cmd.Flags().GetString("profile")
		wait, _ := cmd.Flags().GetBool("wait")
		if appName == "" {
			exitOnError(errors.New("--app-name flag is required"))
		}

		client := newClient(cmd)
		id := lookup(cmd, client.Blueprints.Resource, "blueprint", args[1])
		requestID, err := client.Blueprints.Launch(cmd.Context(), id, appName, profile)
		exitOnError(apiError(fmt.Sprintf("Failed to launch blueprint '%s'", args[1]), err))
		console.PrintInfo(fmt.Sprintf("Launch requested (%s)", requestID))
		if !wait {
			return
		}

		appUUID, err := client.Blueprints.PollLaunch(cmd.Context(), id, requestID)
		exitOnError(err)
		state, err := client.Applications.PollState(cmd.Context(), appUUID)
		exitOnError(err)
		if state != "RUNNING" {
			exitOnError(fmt.Errorf("application '%s' (%s) ended in state %s", appName, appUUID, state))
		}
		console.PrintSuccess(fmt.Sprintf("✅ Application '%s' is running (%s)", appName, appUUID))
	},
}

// parseInputs turns k=v flags into runbook arguments.
func parseInputs(inputs []string) ([]api.RunArg, error) {
	args := make([]api.RunArg, 0, len(inputs))
	for _, in := range inputs {
		k, v, ok := strings.Cut(in, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid input %q, expected name=value", in)
		}
		args = append(args, api.RunArg{Name: k, Value: v})
	}
	return args, nil
}

var runCmd = &cobra.Command{
	Use:   "run runbook NAME",
	Short: "Run a runbook",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if args[0] != "runbook" {
			exitOnError(fmt.Errorf("only runbooks can be run, not %s", args[0]))
		}
		wait, _ := cmd.Flags().GetBool("wait")
		inputs, _ := cmd.Flags().GetStringArray("input")
		runArgs, err := parseInputs(inputs)
		exitOnError(err)

		client := newClient(cmd)
		id := lookup(cmd, client.Runbooks.Resource, "runbook", args[1])
		runlog, err := client.Runbooks.Run(cmd.Context(), id, runArgs)
		exitOnError(apiError(fmt.Sprintf("Failed to run runbook '%s'", args[1]), err))
		console.PrintInfo(fmt.Sprintf("Runbook started, runlog %s", runlog))
		if !wait {
			return
		}

		state, err := client.Runbooks.PollRunlog(cmd.Context(), runlog)
		exitOnError(err)
		if state != "SUCCESS" {
			exitOnError(fmt.Errorf("runbook '%s' ended in state %s", args[1], state))
		}
		console.PrintSuccess(fmt.Sprintf("✅ Runbook '%s' finished", args[1]))
	},
}

var exportCmd = &cobra.Command{
	Use:   "export endpoint NAME",
	Short: "Export an endpoint to an encrypted file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if args[0] != "endpoint" {
			exitOnError(fmt.Errorf("only endpoints can be exported, not %s", args[0]))
		}
		passphrase, _ := cmd.Flags().GetString("passphrase")
		out, _ := cmd.Flags().GetString("out")

		client := newClient(cmd)
		id := lookup(cmd, client.Endpoints.Resource, "endpoint", args[1])
		data, err := client.Endpoints.ExportFile(cmd.Context(), id, passphrase)
		exitOnError(apiError(fmt.Sprintf("Failed to export endpoint '%s'", args[1]), err))
		if err := os.WriteFile(out, data, 0o600); err != nil {
			exitOnError(calmerrors.NewFileSystemError(fmt.Sprintf("Failed to write %s", out), err.Error(),
				"Check the directory exists and is writable", err))
		}
		console.PrintSuccess(fmt.Sprintf("✅ Exported endpoint '%s' to %s", args[1], out))
	},
}

var importCmd = &cobra.Command{
	Use:   "import endpoint FILE",
	Short: "Import an endpoint from an exported file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if args[0] != "endpoint" {
			exitOnError(fmt.Errorf("only endpoints can be imported, not %s", args[0]))
		}
		name, _ := cmd.Flags().GetString("name")
		passphrase, _ := cmd.Flags().GetString("passphrase")

		data, err := os.ReadFile(args[1])
		if err != nil {
			exitOnError(calmerrors.NewFileSystemError(fmt.Sprintf("Failed to read %s", args[1]), err.Error(),
				"Check the file path", err))
		}

		cfg := mustConfig(cmd)
		client, err := app.NewProviderFactory(cfg).GetClient()
		exitOnError(err)
		var projectUUID string
		if cfg.Project.Name != "" {
			projectUUID = lookup(cmd, client.Projects, "project", cfg.Project.Name)
		}

		e, err := client.Endpoints.ImportFile(cmd.Context(), data, name, projectUUID, passphrase)
		exitOnError(apiError(fmt.Sprintf("Failed to import endpoint '%s'", name), err))
		slog.Debug("Imported endpoint", "name", name, "uuid", e.Metadata.UUID)
		console.PrintSuccess(fmt.Sprintf("✅ Imported endpoint '%s' (%s)", name, e.Metadata.UUID))
	},
}

func init() {
	getCmd.Flags().String("name", "", "Only list entities with this name")
	getCmd.Flags().Int("limit", 20, "Number of entities to list")
	getCmd.Flags().Int("offset", 0, "Offset of the first entity")
	getCmd.Flags().StringP("output", "o", ui.FormatTable, "Output format: table or json")
	rootCmd.AddCommand(getCmd)

	describeCmd.Flags().StringP("output", "o", ui.FormatTable, "Output format: table or json")
	rootCmd.AddCommand(describeCmd)

	rootCmd.AddCommand(deleteCmd)

	launchCmd.Flags().String("app-name", "", "Name of the new application (required)")
	launchCmd.Flags().String("profile", "", "Application profile (default is the first profile)")
	launchCmd.Flags().Bool("wait", false, "Wait until the application is running")
	rootCmd.AddCommand(launchCmd)

	runCmd.Flags().Bool("wait", false, "Wait until the runbook finishes")
	runCmd.Flags().StringArray("input", nil, "Runtime variable as name=value, repeatable")
	rootCmd.AddCommand(runCmd)

	exportCmd.Flags().String("passphrase", "", "Passphrase protecting the exported file (required)")
	exportCmd.Flags().String("out", "", "File to write (required)")
	for _, f := range []string{"passphrase", "out"} {
		if err := exportCmd.MarkFlagRequired(f); err != nil {
			slog.Error("Failed to mark flag as required for export command", "flag", f, "error", err)
		}
	}
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().String("name", "", "Name of the imported endpoint (required)")
	importCmd.Flags().String("passphrase", "", "Passphrase of the exported file (required)")
	for _, f := range []string{"name", "passphrase"} {
		if err := importCmd.MarkFlagRequired(f); err != nil {
			slog.Error("Failed to mark flag as required for import command", "flag", f, "error", err)
		}
	}
	rootCmd.AddCommand(importCmd)
}
