package tsm

import (
	"os"
	"path/filepath"
	"sync"
	"templatestore/internal/utils"

	"github.com/juju/errors"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

type Option func(*TsmStore)

// WithCompression sets the zstd level used when persisting.
func WithCompression(level zstd.EncoderLevel) Option {
	return func(s *TsmStore) {
		s.level = level
	}
}

// WithFileLock holds an exclusive flock on "<path>.lock" while the
// backing file is read or replaced.
func WithFileLock() Option {
	return func(s *TsmStore) {
		s.fileLock = true
	}
}

func WithFilesystemHandler(h utils.FilesystemHandler) Option {
	return func(s *TsmStore) {
		s.filesystemHandler = h
	}
}

func NewTsmStore(path string, opts ...Option) *TsmStore {
	s := &TsmStore{
		path:              path,
		level:             zstd.SpeedDefault,
		filesystemHandler: utils.NewFilesystemExecutor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type TsmStore struct {
	path              string
	mu                sync.Mutex
	level             zstd.EncoderLevel
	fileLock          bool
	filesystemHandler utils.FilesystemHandler
}

func (s *TsmStore) Path() string {
	return s.path
}

// Load reads the backing file. A returned error means the lock could not
// be taken; problems with the file itself are reported as StatusCorrupt.
// A missing store is reported as StatusAbsent without taking the lock, so
// reading never creates the directory or the lock file.
func (s *TsmStore) Load() (LoadResult, error) {
	if s.fileLock {
		if _, err := s.filesystemHandler.Stat(s.path); err != nil && s.filesystemHandler.IsNotExist(err) {
			return absent(), nil
		}
	}

	var res LoadResult
	err := s.withLock(func() error {
		res = s.loadOrInit()
		return nil
	})
	return res, err
}

// Save replaces the backing file with the full mapping.
func (s *TsmStore) Save(templates map[string]Template) error {
	return s.withLock(func() error {
		return s.atomicSave(templates)
	})
}

func (s *TsmStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fileLock {
		return fn()
	}

	lockPath := s.path + utils.LockSuffix
	if err := s.filesystemHandler.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Trace(err)
	}

	lf, err := s.filesystemHandler.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errors.Annotatef(err, "open lock %q", lockPath)
	}
	defer lf.Close()

	if err := s.filesystemHandler.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return errors.Annotatef(err, "lock %q", lockPath)
	}
	defer s.filesystemHandler.Flock(int(lf.Fd()), unix.LOCK_UN)

	return fn()
}

func (s *TsmStore) loadOrInit() LoadResult {
	b, err := s.filesystemHandler.ReadFile(s.path)
	if err != nil {
		if s.filesystemHandler.IsNotExist(err) {
			// template store file not exist
			return absent()
		}
		return LoadResult{
			Status: StatusCorrupt,
			Err:    &CorruptError{Path: s.path, Err: errors.Annotate(err, "unreadable")},
		}
	}

	templates, err := decodeTemplates(b)
	if err != nil {
		return LoadResult{
			Status: StatusCorrupt,
			Err:    &CorruptError{Path: s.path, Err: err},
		}
	}
	return LoadResult{
		Status:    StatusLoaded,
		Templates: templates,
	}
}

func absent() LoadResult {
	return LoadResult{
		Status:    StatusAbsent,
		Templates: map[string]Template{},
	}
}

func (s *TsmStore) atomicSave(templates map[string]Template) (err error) {
	b, err := encodeTemplates(templates, s.level)
	if err != nil {
		return err
	}

	if err := s.filesystemHandler.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Trace(err)
	}

	tmp := utils.TempPath(s.path)
	f, err := s.filesystemHandler.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err != nil {
			_ = s.filesystemHandler.Remove(tmp)
		}
	}()

	if _, err := f.Write(b); err != nil {
		f.Close()
		return errors.Trace(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Trace(err)
	}
	if err := f.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.filesystemHandler.Rename(tmp, s.path))
}
