package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"hugo-content/pkg/logger"
	"hugo-content/pkg/models"
	"hugo-content/pkg/services"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newNewCmd(a *app) *cobra.Command {
	var collectionName string
	var sets []string

	cmd := &cobra.Command{
		Use:   "new <path>",
		Short: "Create a content file from a schema collection",
		Long: `Create a content file with every field of a collection filled from
--set values, field defaults or an empty value for the field widget.
Values given with --set are read as YAML, so year=2021 is a number and
authors=[Ada, Grace] is a list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.schema == nil {
				return fmt.Errorf("new needs a schema (--schema or SCHEMA_PATH)")
			}
			name, err := services.CleanContentPath(args[0])
			if err != nil {
				return err
			}

			collection := findCollection(a.schema, collectionName, name)
			if collection == nil {
				return fmt.Errorf("no collection for %s", name)
			}

			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}

			fullPath, err := services.SafeJoin(a.cfg.ContentPath, name)
			if err != nil {
				return err
			}
			if _, err := os.Stat(fullPath); err == nil {
				return fmt.Errorf("%s: %w", name, os.ErrExist)
			}

			record := services.GenerateRecord(name, collection, overrides, time.Now())
			content, err := services.ConstructFileContent(record)
			if err != nil {
				return err
			}
			if err := services.WriteContentFile(fullPath, content); err != nil {
				return err
			}

			a.log.Info("Created content file",
				logger.String("path", name),
				logger.String("collection", collection.Name),
			)
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionName, "collection", "", "collection name (default: matched by folder)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value, repeatable")
	return cmd
}

func findCollection(schema *models.Schema, name, contentPath string) *models.Collection {
	if name == "" {
		return services.CollectionFor(schema, contentPath)
	}
	for i := range schema.Collections {
		if schema.Collections[i].Name == name {
			return &schema.Collections[i]
		}
	}
	return nil
}

func parseSets(sets []string) (map[string]any, error) {
	overrides := make(map[string]any, len(sets))
	for _, set := range sets {
		key, raw, ok := strings.Cut(set, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", set)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("--set %s: %w", key, err)
		}
		if value == nil {
			value = ""
		}
		overrides[key] = value
	}
	return overrides, nil
}
