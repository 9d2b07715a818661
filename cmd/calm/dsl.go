package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"calmdsl/internal/app"
	"calmdsl/internal/compiler"
	"calmdsl/internal/config"
	calmerrors "calmdsl/internal/errors"
	"calmdsl/internal/lint"
	"calmdsl/internal/localfile"
	"calmdsl/internal/parser"
	"calmdsl/internal/runtime"
	"calmdsl/internal/scaffolder"
	"calmdsl/internal/store"
	"calmdsl/pkg/payload"
)

// dslKinds maps the kind argument of DSL commands to document kinds.
var dslKinds = map[string]string{
	"bp":          payload.KindBlueprint,
	"blueprint":   payload.KindBlueprint,
	"runbook":     payload.KindRunbook,
	"endpoint":    payload.KindEndpoint,
	"project":     payload.KindProject,
	"environment": payload.KindEnvironment,
}

func dslKind(arg string) string {
	kind, ok := dslKinds[arg]
	if !ok {
		exitOnError(fmt.Errorf("unknown kind %q, expected one of bp, runbook, endpoint, project, environment", arg))
	}
	return kind
}

// openResolver returns the entity cache resolver, or nil when no cache was
// built yet. The returned function closes the cache.
func openResolver(cfg *config.Config) (compiler.PlatformResolver, func()) {
	path := store.DefaultPath(cfg.Home)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No entity cache, resolving platform entities by name", "path", path)
		return nil, func() {}
	}
	s, err := store.Open(path)
	if err != nil {
		slog.Warn("Failed to open entity cache, resolving platform entities by name", "path", path, "error", err)
		return nil, func() {}
	}
	return store.NewResolver(s), func() { _ = s.Close() }
}

// parseError describes a failure to read or parse file.
func parseError(file string, err error) error {
	if errors.Is(err, parser.ErrFileNotFound) {
		return calmerrors.NewDSLError(fmt.Sprintf("Failed to parse %s", file), err.Error(),
			"Check the path passed with --file", err)
	}
	return calmerrors.NewParseError(fmt.Sprintf("Failed to parse %s", file), err.Error(),
		"Fix the DSL file and try again", err)
}

// applyError describes a failed apply run by the stage it failed in.
func applyError(file string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, parser.ErrFileNotFound) || errors.Is(err, app.ErrParse) {
		return parseError(file, err)
	}
	var stageErr *app.StageError
	if !errors.As(err, &stageErr) {
		return err
	}
	msg := fmt.Sprintf("Apply of %s failed in the %s stage", file, stageErr.Stage)
	resume := "Fix the cause and run apply again to resume from this stage"
	switch stageErr.Stage {
	case app.StageCompile:
		return calmerrors.NewCompileError(msg, stageErr.Err.Error(), "Fix the reported documents and try again", err)
	case app.StageArchive, app.StagePublish:
		return calmerrors.NewSCMError(msg, stageErr.Err.Error(), resume, err)
	default:
		return calmerrors.NewAPIError(msg, stageErr.Err.Error(), resume, err)
	}
}

// compileFile compiles every document of file and checks it holds one of kind.
func compileFile(cfg *config.Config, file, kind string, deterministic bool) []app.Document {
	bundle, err := parser.Parse(file)
	if err != nil {
		exitOnError(parseError(file, err))
	}

	resolver, closeCache := openResolver(cfg)
	defer closeCache()
	c := compiler.New(compiler.Options{
		Deterministic: deterministic,
		Resolver:      resolver,
		Files:         localfile.NewReader(nil, bundle.Dir, cfg.Home),
	})
	docs, err := app.CompileBundle(c, bundle)
	if err != nil {
		exitOnError(calmerrors.NewCompileError(fmt.Sprintf("Failed to compile %s", file), err.Error(),
			"Fix the reported documents and try again", err))
	}
	for _, w := range c.Warnings() {
		console.PrintWarning(w)
	}

	for _, d := range docs {
		if d.Kind == kind {
			return docs
		}
	}
	exitOnError(fmt.Errorf("%s holds no %s", file, kind))
	return nil
}

var compileCmd = &cobra.Command{
	Use:   "compile bp|runbook|endpoint|project|environment",
	Short: "Compile a DSL file into Calm payloads",
	Long: `Compile parses a DSL file, resolves its references and prints the JSON
payloads it compiles to, or writes them to --out.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := dslKind(args[0])
		file, _ := cmd.Flags().GetString("file")
		out, _ := cmd.Flags().GetString("out")
		deterministic, _ := cmd.Flags().GetBool("deterministic")

		cfg, err := loadConfig(cmd)
		exitOnError(err)
		docs := compileFile(cfg, file, kind, deterministic)

		if out == "" {
			for _, d := range docs {
				if d.Kind == kind {
					exitOnError(console.PrintJSON(d.Payload))
				}
			}
			return
		}

		compiled := make([]scaffolder.Compiled, 0, len(docs))
		for _, d := range docs {
			compiled = append(compiled, d.Compiled())
		}
		files, err := scaffolder.New(nil, console.Out(), false).WriteCompiled(out, compiled)
		exitOnError(err)
		for _, f := range files {
			console.Printf("Wrote %s\n", f)
		}
	},
}

var createCmd = &cobra.Command{
	Use:   "create bp|runbook|endpoint|project",
	Short: "Compile a DSL file and create its entities on the server",
	Long: `Create compiles a DSL file and uploads every document in it, in dependency
order. Secrets are uploaded without ever being sent in an import body.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := dslKind(args[0])
		file, _ := cmd.Flags().GetString("file")
		name, _ := cmd.Flags().GetString("name")
		force, _ := cmd.Flags().GetBool("force")

		cfg := mustConfig(cmd)
		docs := compileFile(cfg, file, kind, false)
		if name != "" {
			for i := range docs {
				if docs[i].Kind == kind {
					docs[i].Name = name
					break
				}
			}
		}

		client, err := app.NewProviderFactory(cfg).GetClient()
		exitOnError(err)
		uploader := app.NewUploader(client, cfg.Project.Name, force)
		for _, d := range docs {
			e, err := uploader.Upload(cmd.Context(), d)
			if errors.Is(err, app.ErrExists) {
				exitOnError(calmerrors.NewAPIError(fmt.Sprintf("Failed to create %s '%s'", d.Kind, d.Name),
					"an entity with this name already exists", "Use --force to replace it, or --name to pick another name", err))
			}
			exitOnError(err)
			console.PrintSuccess(fmt.Sprintf("✅ Created %s '%s' (%s)", d.Kind, d.Name, e.Metadata.UUID))
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init bp|runbook NAME",
	Short: "Create a sample DSL project",
	Long: `Init writes a sample blueprint or runbook project: the DSL file, the scripts
it reads and placeholder secrets under .local/.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := loadConfig(cmd)
		exitOnError(err)
		files, err := scaffolder.New(nil, console.Out(), dryRun).Init(scaffolder.InitOptions{
			Kind:    args[0],
			Name:    args[1],
			Dir:     dir,
			Project: cfg.Project.Name,
		})
		exitOnError(err)

		if dryRun {
			console.PrintInfo("Dry run completed successfully.")
			return
		}
		for _, f := range files {
			console.Printf("Created %s\n", f)
		}
		console.PrintSuccess(fmt.Sprintf("✅ Project '%s' created. Replace the placeholders under .local/ before creating it.", args[1]))
	},
}

var lintCmd = &cobra.Command{
	Use:   "lint bp|runbook",
	Short: "Run shellcheck on the shell scripts of a DSL file",
	Long: `Lint compiles a DSL file, extracts every shell script of its blueprints or
runbooks and runs shellcheck on them inside a container.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := dslKind(args[0])
		if kind != payload.KindBlueprint && kind != payload.KindRunbook {
			exitOnError(fmt.Errorf("lint supports bp and runbook, not %s", args[0]))
		}
		file, _ := cmd.Flags().GetString("file")
		workDir, _ := cmd.Flags().GetString("work-dir")

		cfg, err := loadConfig(cmd)
		exitOnError(err)
		docs := compileFile(cfg, file, kind, true)

		rt, err := runtime.NewDockerRuntime(cmd.Context())
		if err != nil {
			exitOnError(calmerrors.NewRuntimeError("Failed to connect to Docker", err.Error(),
				"Start Docker or set DOCKER_HOST", err))
		}
		linter := lint.New(rt, cfg.Lint.Image)

		failed := false
		for _, d := range docs {
			if d.Kind != kind {
				continue
			}
			result, err := linter.Lint(cmd.Context(), d.Payload, workDir)
			if errors.Is(err, lint.ErrFindings) {
				failed = true
				console.PrintWarning(fmt.Sprintf("%s '%s': %d script(s) with findings", d.Kind, d.Name, len(result.Scripts)))
				console.Printf("%s\n", strings.Join(result.Findings, "\n"))
				continue
			}
			exitOnError(err)
			console.PrintSuccess(fmt.Sprintf("✅ %s '%s': %d script(s) clean", d.Kind, d.Name, len(result.Scripts)))
		}
		if failed {
			exitOnError(calmerrors.NewLintError("Lint failed", "shellcheck reported problems",
				"Fix the scripts listed above", lint.ErrFindings))
		}
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Compile, archive, publish, upload and optionally launch a DSL file",
	Long: `Apply runs the complete workflow for a DSL file: compile it, commit the
compiled payload to the local archive, push the archive to GitLab when a token
is configured, upload every entity and optionally launch the blueprint.

A failed run resumes from the failed stage on the next apply of the same file,
unless the compiled payload changed in between.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			exitOnError(errors.New("--file flag is required"))
		}
		opts := app.Options{Path: file}
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.RetainState, _ = cmd.Flags().GetBool("retain-state")
		opts.Launch, _ = cmd.Flags().GetBool("launch")
		opts.AppName, _ = cmd.Flags().GetString("app-name")
		opts.Profile, _ = cmd.Flags().GetString("profile")

		var cfg *config.Config
		if opts.DryRun {
			var err error
			cfg, err = loadConfig(cmd)
			exitOnError(err)
		} else {
			cfg = mustConfig(cmd)
		}
		opts.Project = cfg.Project.Name

		resolver, closeCache := openResolver(cfg)
		defer closeCache()
		runner := app.NewRunner(app.NewProviderFactory(cfg), console, resolver, cfg.Home)
		exitOnError(applyError(file, runner.Apply(cmd.Context(), opts)))
	},
}

func init() {
	compileCmd.Flags().StringP("file", "f", "", "Path to the DSL file (required)")
	compileCmd.Flags().String("out", "", "Write the compiled payloads to this directory")
	compileCmd.Flags().Bool("deterministic", false, "Derive UUIDs from entity names so unchanged files compile identically")
	if err := compileCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for compile command", "error", err)
	}
	rootCmd.AddCommand(compileCmd)

	createCmd.Flags().StringP("file", "f", "", "Path to the DSL file (required)")
	createCmd.Flags().String("name", "", "Create the entity under this name")
	createCmd.Flags().Bool("force", false, "Replace an existing entity of the same name")
	if err := createCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for create command", "error", err)
	}
	rootCmd.AddCommand(createCmd)

	initCmd.Flags().String("dir", ".", "Directory to create the project in")
	initCmd.Flags().Bool("dry-run", false, "Print files that would be created without actually writing them")
	rootCmd.AddCommand(initCmd)

	lintCmd.Flags().StringP("file", "f", "", "Path to the DSL file (required)")
	lintCmd.Flags().String("work-dir", "", "Directory to extract scripts into (default is a temporary directory)")
	if err := lintCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for lint command", "error", err)
	}
	rootCmd.AddCommand(lintCmd)

	applyCmd.Flags().StringP("file", "f", "", "Path to the DSL file (required)")
	applyCmd.Flags().Bool("dry-run", false, "Simulate the workflow without making any changes")
	applyCmd.Flags().Bool("retain-state", false, "Keep the state file after successful completion for auditing purposes")
	applyCmd.Flags().Bool("launch", false, "Launch the blueprint once uploaded")
	applyCmd.Flags().String("app-name", "", "Application name for --launch")
	applyCmd.Flags().String("profile", "", "Application profile for --launch (default is the first profile)")
	if err := applyCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for apply command", "error", err)
	}
	rootCmd.AddCommand(applyCmd)
}
