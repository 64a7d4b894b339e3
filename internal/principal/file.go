package principal

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

type fileDocument struct {
	Principals []config.PrincipalSpec `yaml:"principals"`
}

// FileStore serves principals declared in a YAML file:
//
//	principals:
//	  - id: billing
//	    value: ${BILLING_KEY}
//	    permissions: [read, write]
//	    expiresAt: 2027-01-01T00:00:00Z
type FileStore struct {
	*MemoryStore

	path    string
	logger  observability.Logger
	watcher *config.Watcher
}

// NewFileStore loads path. The file must exist and parse.
func NewFileStore(path string, logger observability.Logger) (*FileStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		logger:      logger.With(observability.Component("principal-file-store")),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file. On error the previous content is kept.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read principals file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal([]byte(config.SubstituteEnv(string(data))), &doc); err != nil {
		return fmt.Errorf("parse principals file %s: %w", s.path, err)
	}

	seen := make(map[string]string, len(doc.Principals))
	for i, p := range doc.Principals {
		if p.ID == "" || p.Value == "" {
			return fmt.Errorf("principals file %s: entry %d needs id and value", s.path, i)
		}
		if owner, dup := seen[p.Value]; dup {
			return fmt.Errorf("principals file %s: %q and %q share a value: %w", s.path, owner, p.ID, ErrDuplicate)
		}
		seen[p.Value] = p.ID
	}

	s.Replace(fromSpecs(doc.Principals))
	s.logger.Info("principals loaded",
		observability.String("path", s.path),
		observability.Int("count", len(doc.Principals)),
	)
	return nil
}

// Watch reloads the file whenever it changes until ctx ends or Close is
// called.
func (s *FileStore) Watch(ctx context.Context) error {
	w, err := config.NewWatcher(s.path, func() {
		if err := s.Reload(); err != nil {
			s.logger.Error("principals reload failed, keeping previous set", observability.Error(err))
		}
	}, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

// Close stops watching.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Stop()
}
