// Package tsm holds named image templates in memory and persists the
// whole collection to a single compressed file after every mutation.
package tsm

import (
	"sort"
	"sync"
	"templatestore/internal/audit"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("templatestore.tsm")

// Open binds a manager to the backing file at path, loading it if present.
func Open(path string, opts ...Option) (*TsmManager, error) {
	return NewTsmManager(NewTsmStore(path, opts...), nil)
}

// NewTsmManager loads tsmStore once. A missing file yields an empty
// manager; a corrupt one is returned as a *CorruptError.
func NewTsmManager(tsmStore TsmStoreHandler, auditor audit.Logger) (*TsmManager, error) {
	res, err := tsmStore.Load()
	if err != nil {
		return nil, errors.Annotatef(err, "open template store %q", tsmStore.Path())
	}

	switch res.Status {
	case StatusCorrupt:
		return nil, res.Err
	case StatusAbsent:
		logger.Debugf("template store %q not found, starting empty", tsmStore.Path())
	default:
		logger.Debugf("loaded %d templates from %q", len(res.Templates), tsmStore.Path())
	}

	if auditor == nil {
		auditor = audit.Discard
	}
	return &TsmManager{
		tsmStore:  tsmStore,
		auditor:   auditor,
		templates: res.Templates,
	}, nil
}

type TsmManager struct {
	tsmStore  TsmStoreHandler
	auditor   audit.Logger
	mu        sync.Mutex
	templates map[string]Template
	stale     bool
}

// AddTemplates merges entries, overwriting existing names, and persists.
// The map key is the template name.
func (m *TsmManager) AddTemplates(entries map[string]Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(entries))
	for name := range entries {
		if name == "" {
			return errors.NotValidf("empty template name")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := entries[name].Clone()
		t.Name = name
		m.templates[name] = t
	}

	err := m.persist()
	ev := audit.NewEvent(audit.ActionAdd, m.tsmStore.Path())
	ev.Target = audit.Target{Names: names}
	ev.SetResult(len(m.templates), err)
	m.auditor.Write(ev)
	return err
}

// RemoveTemplates deletes the named templates and persists once. Names
// that are not present are skipped and returned, sorted.
func (m *TsmManager) RemoveTemplates(names []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed, missing []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		if _, ok := m.templates[name]; !ok {
			logger.Infof("template %q not found in store", name)
			missing = append(missing, name)
			continue
		}
		delete(m.templates, name)
		removed = append(removed, name)
	}
	sort.Strings(removed)
	sort.Strings(missing)

	err := m.persist()
	ev := audit.NewEvent(audit.ActionRemove, m.tsmStore.Path())
	ev.Target = audit.Target{Names: removed, Missing: missing}
	ev.SetResult(len(m.templates), err)
	m.auditor.Write(ev)
	return missing, err
}

// GetTemplate returns a copy of the named template, or an error
// satisfying errors.Is(err, errors.NotFound).
func (m *TsmManager) GetTemplate(name string) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[name]
	if !ok {
		return Template{}, errors.NotFoundf("template %q", name)
	}
	return t.Clone(), nil
}

func (m *TsmManager) ListNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Persist rewrites the backing file from memory. Mutators call it
// implicitly; call it directly to retry after a write failure.
func (m *TsmManager) Persist() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.persist()
	ev := audit.NewEvent(audit.ActionPersist, m.tsmStore.Path())
	ev.SetResult(len(m.templates), err)
	m.auditor.Write(ev)
	return err
}

// Stale reports whether memory holds changes the last persist failed to write.
func (m *TsmManager) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

func (m *TsmManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.templates)
}

func (m *TsmManager) Path() string {
	return m.tsmStore.Path()
}

func (m *TsmManager) persist() error {
	if err := m.tsmStore.Save(m.templates); err != nil {
		m.stale = true
		logger.Warningf("template store %q is stale: %v", m.tsmStore.Path(), err)
		return &WriteError{Path: m.tsmStore.Path(), Err: err}
	}
	m.stale = false
	logger.Debugf("persisted %d templates to %q", len(m.templates), m.tsmStore.Path())
	return nil
}
