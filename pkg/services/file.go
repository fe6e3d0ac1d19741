package services

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hugo-content/pkg/models"

	"gopkg.in/yaml.v3"
)

// CleanContentPath normalises a user supplied path relative to the content
// root and rejects paths that would leave it.
func CleanContentPath(target string) (string, error) {
	cleaned := path.Clean(filepath.ToSlash(target))
	if !fs.ValidPath(cleaned) {
		return "", fmt.Errorf("invalid content path %q", target)
	}
	return cleaned, nil
}

// SafeJoin resolves target under root.
func SafeJoin(root, target string) (string, error) {
	rel, err := CleanContentPath(target)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// LoadSchema reads a collection schema file.
func LoadSchema(schemaPath string) (*models.Schema, error) {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var schema models.Schema
	if err := yaml.Unmarshal(content, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", schemaPath, err)
	}
	if err := ValidateSchema(&schema); err != nil {
		return nil, fmt.Errorf("schema %s: %w", schemaPath, err)
	}
	return &schema, nil
}

// WriteContentFile writes rendered content, creating parent directories.
func WriteContentFile(fullPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, content, 0644)
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, want := range extensions {
		if ext == want {
			return true
		}
	}
	return false
}
