package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// ContentPath is the directory holding content files.
	ContentPath string
	// Extensions selects content files by extension.
	Extensions []string
	// SchemaPath points at an optional collection schema.
	SchemaPath string
	// Formats limits the recognized front matter delimiters (yaml, toml).
	Formats []string

	LoadConcurrency int
	// DuplicateKeys is "overwrite" or "reject".
	DuplicateKeys string
	AllowNested   bool
	// OnError is "abort" or "skip".
	OnError string

	LogLevel  string
	LogFormat string

	WatchDebounce time.Duration

	// EnvFileLoaded records whether a .env file was found.
	EnvFileLoaded bool
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory when one exists.
func Load() *Config {
	loaded := godotenv.Load() == nil

	// Helper to get env with default
	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		ContentPath:     getEnv("CONTENT_PATH", "./content"),
		Extensions:      splitList(getEnv("CONTENT_EXTENSIONS", ".md")),
		SchemaPath:      getEnv("SCHEMA_PATH", ""),
		Formats:         splitList(getEnv("FRONTMATTER_FORMATS", "yaml,toml")),
		LoadConcurrency: 20,
		DuplicateKeys:   getEnv("DUPLICATE_KEYS", "overwrite"),
		OnError:         getEnv("ON_ERROR", "abort"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		WatchDebounce:   200 * time.Millisecond,
		EnvFileLoaded:   loaded,
	}

	if cc := os.Getenv("LOAD_CONCURRENCY"); cc != "" {
		if val, err := strconv.Atoi(cc); err == nil && val > 0 {
			cfg.LoadConcurrency = val
		}
	}
	if an := os.Getenv("ALLOW_NESTED"); an != "" {
		if val, err := strconv.ParseBool(an); err == nil {
			cfg.AllowNested = val
		}
	}
	if wd := os.Getenv("WATCH_DEBOUNCE"); wd != "" {
		if val, err := time.ParseDuration(wd); err == nil {
			cfg.WatchDebounce = val
		}
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
