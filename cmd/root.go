// Package cmd provides the command-line interface for checking and
// normalising site content files.
//
// Configuration comes from the environment (optionally a .env file) and is
// overridden by flags:
//
//	CONTENT_PATH         content directory (--content)
//	CONTENT_EXTENSIONS   comma separated extensions, default .md (--ext)
//	SCHEMA_PATH          collection schema file (--schema)
//	FRONTMATTER_FORMATS  recognized delimiters, default yaml,toml
//	LOAD_CONCURRENCY     files parsed at once (--concurrency)
//	DUPLICATE_KEYS       overwrite or reject (--duplicates)
//	ALLOW_NESTED         accept nested mappings (--allow-nested)
//	ON_ERROR             abort or skip malformed files (--on-error)
//	LOG_LEVEL, LOG_FORMAT, WATCH_DEBOUNCE
package cmd

import (
	"fmt"
	"os"

	"hugo-content/pkg/config"
	"hugo-content/pkg/logger"
	"hugo-content/pkg/models"
	"hugo-content/pkg/services"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are resolved.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	schema *models.Schema
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var (
		contentPath string
		extensions  []string
		schemaPath  string
		logLevel    string
		onError     string
		duplicates  string
		allowNested bool
		concurrency int
	)

	root := &cobra.Command{
		Use:   "hugo-content",
		Short: "Parse, check and normalise front matter content files",
		Long: `hugo-content reads content files made of a delimited metadata block
(YAML between --- lines or TOML between +++ lines) followed by a body, and
turns them into uniform records.

  hugo-content validate            Check every content file
  hugo-content show post/a.md      Print one parsed record
  hugo-content fmt --write         Rewrite files in canonical form
  hugo-content new publication/x.md --collection publication
  hugo-content watch               Re-check files as they change`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			flags := cmd.Flags()
			if flags.Changed("content") {
				cfg.ContentPath = contentPath
			}
			if flags.Changed("ext") {
				cfg.Extensions = extensions
			}
			if flags.Changed("schema") {
				cfg.SchemaPath = schemaPath
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("on-error") {
				cfg.OnError = onError
			}
			if flags.Changed("duplicates") {
				cfg.DuplicateKeys = duplicates
			}
			if flags.Changed("allow-nested") {
				cfg.AllowNested = allowNested
			}
			if flags.Changed("concurrency") {
				cfg.LoadConcurrency = concurrency
			}

			log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return err
			}
			if !cfg.EnvFileLoaded {
				log.Debug("No .env file found, using environment only")
			}
			log.Debug("Resolved configuration",
				logger.String("content", cfg.ContentPath),
				logger.String("duplicates", cfg.DuplicateKeys),
				logger.String("on_error", cfg.OnError),
				logger.Bool("allow_nested", cfg.AllowNested),
				logger.Int("concurrency", cfg.LoadConcurrency),
			)

			a.cfg, a.log = cfg, log
			if cfg.SchemaPath != "" {
				schema, err := services.LoadSchema(cfg.SchemaPath)
				if err != nil {
					return err
				}
				a.schema = schema
				log.Debug("Loaded schema",
					logger.String("path", cfg.SchemaPath),
					logger.Int("collections", len(schema.Collections)),
				)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&contentPath, "content", "c", "", "content directory (default ./content, env CONTENT_PATH)")
	pf.StringSliceVar(&extensions, "ext", nil, "content file extensions (default .md)")
	pf.StringVar(&schemaPath, "schema", "", "collection schema file")
	pf.StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	pf.StringVar(&onError, "on-error", "", "malformed file policy (abort, skip)")
	pf.StringVar(&duplicates, "duplicates", "", "duplicate key policy (overwrite, reject)")
	pf.BoolVar(&allowNested, "allow-nested", false, "accept nested mappings in metadata")
	pf.IntVar(&concurrency, "concurrency", 0, "number of files parsed at once")

	root.AddCommand(
		newValidateCmd(a),
		newShowCmd(a),
		newFmtCmd(a),
		newNewCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) parseOptions() (services.ParseOptions, error) {
	dup, err := services.ParseDuplicatePolicy(a.cfg.DuplicateKeys)
	if err != nil {
		return services.ParseOptions{}, err
	}
	formats, err := services.ParseFormats(a.cfg.Formats)
	if err != nil {
		return services.ParseOptions{}, err
	}
	return services.ParseOptions{
		Formats:     formats,
		Duplicates:  dup,
		AllowNested: a.cfg.AllowNested,
	}, nil
}

// loader builds a loader over the content directory. forceSkip makes
// malformed files part of the report regardless of ON_ERROR.
func (a *app) loader(forceSkip bool) (*services.Loader, error) {
	info, err := os.Stat(a.cfg.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("content directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content directory: %s is not a directory", a.cfg.ContentPath)
	}

	opts, err := a.parseOptions()
	if err != nil {
		return nil, err
	}
	policy, err := services.ParseErrorPolicy(a.cfg.OnError)
	if err != nil {
		return nil, err
	}
	if forceSkip {
		policy = services.Skip
	}
	return services.NewLoader(os.DirFS(a.cfg.ContentPath), services.LoaderConfig{
		Extensions:  a.cfg.Extensions,
		Concurrency: a.cfg.LoadConcurrency,
		OnError:     policy,
		Parse:       opts,
	}, a.log), nil
}

func rootsOrDefault(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}
