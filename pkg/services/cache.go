package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"hugo-content/pkg/logger"
	"hugo-content/pkg/models"

	"golang.org/x/sync/errgroup"
)

// ErrorPolicy decides how a load reacts to a malformed file.
type ErrorPolicy int

const (
	// FailFast aborts the whole load on the first malformed file.
	FailFast ErrorPolicy = iota
	// Skip records malformed files in the report and loads the rest.
	Skip
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort", "fail":
		return FailFast, nil
	case "skip":
		return Skip, nil
	}
	return FailFast, fmt.Errorf("unknown error policy %q (want abort or skip)", s)
}

const defaultConcurrency = 20

type LoaderConfig struct {
	// Extensions selects content files, e.g. ".md". Defaults to ".md".
	Extensions []string
	// Concurrency bounds the number of files parsed at once.
	Concurrency int
	OnError     ErrorPolicy
	Parse       ParseOptions
}

// Failure is a file that could not be parsed during a Skip load.
type Failure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// LoadReport is the result of loading a content tree.
type LoadReport struct {
	Records  []*models.ContentRecord
	Failures []Failure
}

// Loader reads and parses content files from a filesystem.
type Loader struct {
	fsys fs.FS
	cfg  LoaderConfig
	log  logger.Logger
}

func NewLoader(fsys fs.FS, cfg LoaderConfig, log logger.Logger) *Loader {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".md"}
	}
	exts := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	cfg.Extensions = exts
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{fsys: fsys, cfg: cfg, log: log}
}

// Matches reports whether a path names a content file.
func (l *Loader) Matches(name string) bool {
	return hasExtension(name, l.cfg.Extensions)
}

// Files lists content files under root in lexical order.
func (l *Loader) Files(ctx context.Context, root string) ([]string, error) {
	root, err := CleanContentPath(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = fs.WalkDir(l.fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if l.Matches(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// LoadFile reads and parses one content file.
func (l *Loader) LoadFile(ctx context.Context, name string) (*models.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := CleanContentPath(name)
	if err != nil {
		return nil, err
	}
	content, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return ParseRecord(name, content, l.cfg.Parse)
}

// Load parses every content file under root. Files are independent, so they
// are parsed in parallel; records come back sorted by path.
func (l *Loader) Load(ctx context.Context, root string) (*LoadReport, error) {
	files, err := l.Files(ctx, root)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ContentRecord, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			record, err := l.LoadFile(gctx, file)
			if err != nil {
				if l.cfg.OnError == Skip && IsMalformed(err) {
					errs[i] = err
					return nil
				}
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &LoadReport{Records: make([]*models.ContentRecord, 0, len(files))}
	for i := range files {
		if errs[i] != nil {
			l.log.Warn("Skipping malformed content file", logger.String("path", files[i]), logger.Error(errs[i]))
			report.Failures = append(report.Failures, Failure{Path: files[i], Err: errs[i]})
			continue
		}
		report.Records = append(report.Records, records[i])
	}
	l.log.Debug("Loaded content",
		logger.String("root", root),
		logger.Int("records", len(report.Records)),
		logger.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// Store caches the records of one content tree until invalidated.
type Store struct {
	loader *Loader
	root   string

	mu       sync.RWMutex
	loaded   bool
	records  map[string]*models.ContentRecord
	failures map[string]error
}

func NewStore(loader *Loader, root string) *Store {
	return &Store{loader: loader, root: root}
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	report, err := s.loader.Load(ctx, s.root)
	if err != nil {
		return err
	}
	s.records = make(map[string]*models.ContentRecord, len(report.Records))
	for _, r := range report.Records {
		s.records[r.Path()] = r
	}
	s.failures = make(map[string]error, len(report.Failures))
	for _, f := range report.Failures {
		s.failures[f.Path] = f.Err
	}
	s.loaded = true
	return nil
}

// Records returns all cached records sorted by path, loading them on first use.
func (s *Store) Records(ctx context.Context) ([]*models.ContentRecord, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ContentRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out, nil
}

func (s *Store) Get(ctx context.Context, name string) (*models.ContentRecord, bool, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}
	name, err := CleanContentPath(name)
	if err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[name]
	return r, ok, nil
}

// Failures returns the malformed files of the cached load sorted by path.
func (s *Store) Failures() []Failure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Failure, 0, len(s.failures))
	for p, err := range s.failures {
		out = append(out, Failure{Path: p, Err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Reload re-parses a single file and updates the cache. A file that no longer
// exists is dropped and (nil, nil) is returned; a malformed file is dropped
// from the records and its error returned.
func (s *Store) Reload(ctx context.Context, name string) (*models.ContentRecord, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	name, err := CleanContentPath(name)
	if err != nil {
		return nil, err
	}

	record, err := s.loader.LoadFile(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		record, err = nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Invalidated meanwhile: the next read loads the whole tree again.
	if !s.loaded {
		return record, err
	}
	delete(s.records, name)
	delete(s.failures, name)
	switch {
	case record != nil:
		s.records[name] = record
	case IsMalformed(err):
		s.failures[name] = err
	}
	return record, err
}

// Invalidate drops the cache; the next read loads the tree again.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.records = nil
	s.failures = nil
}

// InTree reports whether a content path lies under the store root.
func (s *Store) InTree(name string) bool {
	root := path.Clean(s.root)
	return root == "." || name == root || strings.HasPrefix(name, root+"/")
}
