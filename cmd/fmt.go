package cmd

import (
	"bytes"
	"fmt"
	"os"

	"hugo-content/pkg/logger"
	"hugo-content/pkg/services"

	"github.com/spf13/cobra"
)

func newFmtCmd(a *app) *cobra.Command {
	var write, diff bool

	cmd := &cobra.Command{
		Use:   "fmt [path...]",
		Short: "Rewrite content files in canonical form",
		Long: `Parse content files and render them back in canonical form: metadata keys
in source order, two space YAML indentation, one blank line before the body
and absent fields filled from schema defaults. Files whose text would change
are listed; --write rewrites them in place and --diff prints what would
change (needs git on PATH). With ON_ERROR=abort a malformed file stops the
run before anything is written; with skip it is reported and left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := a.loader(false)
			if err != nil {
				return err
			}
			opts, err := a.parseOptions()
			if err != nil {
				return err
			}
			policy, err := services.ParseErrorPolicy(a.cfg.OnError)
			if err != nil {
				return err
			}

			// Normalise everything first so an abort leaves every file untouched.
			var changes []change
			seen := map[string]bool{}
			failed := 0
			for _, root := range rootsOrDefault(args) {
				files, err := loader.Files(cmd.Context(), root)
				if err != nil {
					return err
				}
				for _, name := range files {
					if seen[name] {
						continue
					}
					seen[name] = true

					c, err := a.normalizeFile(name, opts)
					if err != nil {
						if !services.IsMalformed(err) || policy == services.FailFast {
							return err
						}
						failed++
						fmt.Fprintln(cmd.ErrOrStderr(), err)
						continue
					}
					if c != nil {
						changes = append(changes, *c)
					}
				}
			}

			out := cmd.OutOrStdout()
			for _, c := range changes {
				if diff {
					d, err := services.Diff(cmd.Context(), c.name, c.content, c.normalized)
					if err != nil {
						return err
					}
					fmt.Fprint(out, d)
				} else {
					fmt.Fprintln(out, c.name)
				}
				if write {
					if err := services.WriteContentFile(c.fullPath, c.normalized); err != nil {
						return fmt.Errorf("write %s: %w", c.name, err)
					}
					a.log.Debug("Rewrote content file", logger.String("path", c.name))
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d malformed files left untouched", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite files instead of listing them")
	cmd.Flags().BoolVarP(&diff, "diff", "d", false, "print a diff instead of file names")
	return cmd
}

// change is a content file whose canonical form differs from its text.
type change struct {
	name       string
	fullPath   string
	content    []byte
	normalized []byte
}

// normalizeFile returns nil when the file is already canonical.
func (a *app) normalizeFile(name string, opts services.ParseOptions) (*change, error) {
	fullPath, err := services.SafeJoin(a.cfg.ContentPath, name)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	normalized, err := services.NormalizeContent(name, content, services.CollectionFor(a.schema, name), opts)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(content, normalized) {
		return nil, nil
	}
	return &change{name: name, fullPath: fullPath, content: content, normalized: normalized}, nil
}
