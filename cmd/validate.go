package cmd

import (
	"fmt"
	"io"

	"hugo-content/pkg/services"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

type fileResult struct {
	Path       string               `json:"path"`
	Collection string               `json:"collection,omitempty"`
	Error      string               `json:"error,omitempty"`
	Violations []services.Violation `json:"violations,omitempty"`
}

type validateSummary struct {
	Total     int          `json:"total"`
	Valid     int          `json:"valid"`
	Malformed int          `json:"malformed"`
	Invalid   int          `json:"invalid"`
	Results   []fileResult `json:"results"`
}

func newValidateCmd(a *app) *cobra.Command {
	var format string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Parse every content file and check it against the schema",
		Long: `Parse content files under the given paths (default: the whole content
directory). Malformed metadata blocks are always reported; when a schema is
configured each record is also checked against its collection.

Examples:
  hugo-content validate
  hugo-content validate publication post/2019
  hugo-content validate --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := a.loader(true)
			if err != nil {
				return err
			}

			summary := validateSummary{}
			// Overlapping roots such as "post post/2019" report each file once.
			seen := map[string]bool{}
			for _, root := range rootsOrDefault(args) {
				report, err := loader.Load(cmd.Context(), root)
				if err != nil {
					return err
				}
				for _, f := range report.Failures {
					if seen[f.Path] {
						continue
					}
					seen[f.Path] = true
					summary.Malformed++
					summary.Results = append(summary.Results, fileResult{Path: f.Path, Error: f.Err.Error()})
				}
				for _, record := range report.Records {
					if seen[record.Path()] {
						continue
					}
					seen[record.Path()] = true
					res := fileResult{Path: record.Path()}
					if c := services.CollectionFor(a.schema, record.Path()); c != nil {
						res.Collection = c.Name
						res.Violations = services.CheckRecord(record, c)
					}
					if len(res.Violations) > 0 {
						summary.Invalid++
					} else {
						summary.Valid++
					}
					summary.Results = append(summary.Results, res)
				}
			}
			summary.Total = summary.Valid + summary.Invalid + summary.Malformed

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if err := writeJSON(out, summary); err != nil {
					return err
				}
			case "text":
				writeValidateText(out, summary, verbose)
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			if bad := summary.Malformed + summary.Invalid; bad > 0 {
				return fmt.Errorf("%d of %d files failed validation", bad, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also list files that passed")
	return cmd
}

func writeValidateText(w io.Writer, summary validateSummary, verbose bool) {
	for _, res := range summary.Results {
		switch {
		case res.Error != "":
			fmt.Fprintf(w, "%s\n", res.Error)
		case len(res.Violations) > 0:
			for _, v := range res.Violations {
				fmt.Fprintf(w, "%s: %s\n", res.Path, v)
			}
		case verbose:
			fmt.Fprintf(w, "%s: ok\n", res.Path)
		}
	}
	fmt.Fprintf(w, "checked %d files: %d valid, %d malformed, %d with schema violations\n",
		summary.Total, summary.Valid, summary.Malformed, summary.Invalid)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
