// Package journal maintains the running-context journal: the document
// tracking the active persona, current step, and work summaries for a
// branch.
//
// The journal lives as a YAML file in the working tree so hooks and
// humans can read it, with a per-branch snapshot in the state store so
// post-checkout can restore the right context when switching branches.
// All writes go through the named lock; two rapid commits must not
// interleave journal updates.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/hookd/internal/breaker"
	"github.com/fyrsmithlabs/hookd/internal/statestore"
)

// lockName serializes journal access between hook processes.
const lockName = "journal"

// Entry is one journal item.
type Entry struct {
	Timestamp   time.Time `yaml:"timestamp"`
	Persona     string    `yaml:"persona,omitempty"`
	Step        string    `yaml:"step,omitempty"`
	Summary     string    `yaml:"summary"`
	Files       []string  `yaml:"files,omitempty"`
	Synthesized bool      `yaml:"synthesized,omitempty"`
}

// Document is the full journal for one branch.
type Document struct {
	Branch    string    `yaml:"branch"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Entries   []Entry   `yaml:"entries"`
}

// Service manages the journal file and its branch snapshots.
type Service struct {
	path   string
	branch string
	store  statestore.Store
	locker *breaker.Locker
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a journal service for the given working-tree path
// and active branch.
func NewService(path, branch string, store statestore.Store, locker *breaker.Locker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		path:   path,
		branch: branch,
		store:  store,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the working-tree location of the journal file.
func (s *Service) Path() string { return s.path }

// RestoreOrInit makes the journal file reflect the target branch:
// restore the branch's snapshot when one exists, otherwise initialize
// an empty journal. Returns true when a snapshot was restored.
func (s *Service) RestoreOrInit(ctx context.Context, branch string) (bool, error) {
	restored := false
	err := s.locker.WithLock(ctx, lockName, func() error {
		s.branch = branch

		content, err := s.store.Read(ctx, snapshotKey(branch))
		if err == nil {
			restored = true
			return s.writeFile([]byte(content))
		}
		if !errors.Is(err, statestore.ErrNotFound) {
			return fmt.Errorf("read journal snapshot: %w", err)
		}

		doc := Document{Branch: branch, UpdatedAt: s.now().UTC()}
		data, err := yaml.Marshal(&doc)
		if err != nil {
			return fmt.Errorf("marshal journal: %w", err)
		}
		if err := s.writeFile(data); err != nil {
			return err
		}
		return s.store.Write(ctx, snapshotKey(branch), string(data))
	})
	return restored, err
}

// Append adds an entry to the journal, updating both the working-tree
// file and the branch snapshot.
func (s *Service) Append(ctx context.Context, entry Entry) error {
	return s.locker.WithLock(ctx, lockName, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = s.now().UTC()
		}
		doc.Branch = s.branch
		doc.UpdatedAt = s.now().UTC()
		doc.Entries = append(doc.Entries, entry)

		data, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal journal: %w", err)
		}
		if err := s.writeFile(data); err != nil {
			return err
		}
		return s.store.Write(ctx, snapshotKey(s.branch), string(data))
	})
}

// AppendSynthesized adds an auto-generated entry; used by recovery.
func (s *Service) AppendSynthesized(ctx context.Context, summary string) error {
	return s.Append(ctx, Entry{Summary: summary, Synthesized: true})
}

// Load returns the current journal document. A missing file yields an
// empty document, not an error.
func (s *Service) Load() (*Document, error) {
	return s.load()
}

func (s *Service) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Branch: s.branch}, nil
		}
		return nil, fmt.Errorf("read journal file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse journal file: %w", err)
	}
	return &doc, nil
}

func (s *Service) writeFile(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write journal file: %w", err)
	}
	return nil
}

// snapshotKey maps a branch name to its state-store key. Slashes in
// branch names would otherwise nest under unrelated prefixes.
func snapshotKey(branch string) string {
	return "journal/" + strings.ReplaceAll(branch, "/", "__") + ".yaml"
}
