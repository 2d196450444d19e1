// Package files stores generated CAD files on disk. Named files live under
// stl/ and are kept; token files live under tmp/ and expire after a TTL.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("file not found or expired")
	ErrExpired  = errors.New("file expired")
)

const (
	NamedDir = "stl"
	TempDir  = "tmp"

	DefaultTTL = 5 * time.Minute
)

var extPattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Store manages the data directory.
type Store struct {
	root   string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewStore creates root/stl and root/tmp if needed.
func NewStore(root string, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{NamedDir, TempDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &Store{root: root, ttl: ttl, logger: logger, now: time.Now}, nil
}

func (s *Store) Root() string             { return s.root }
func (s *Store) TTL() time.Duration       { return s.ttl }
func (s *Store) NamedPath() string        { return filepath.Join(s.root, NamedDir) }
func (s *Store) tempPath(n string) string { return filepath.Join(s.root, TempDir, n) }

// SanitizeName keeps a file name safe to join onto a directory and to
// use unescaped in a URL path. Only [A-Za-z0-9._-] survive; control
// characters are dropped and everything else becomes '_'.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

// writeAtomic writes to a sibling temp file then renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// SaveNamed writes stl/<name> and returns the path relative to the data
// root, using forward slashes.
func (s *Store) SaveNamed(name string, write func(io.Writer) error) (string, error) {
	name = SanitizeName(name)
	if err := writeAtomic(filepath.Join(s.NamedPath(), name), write); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return NamedDir + "/" + name, nil
}

// CreateToken writes tmp/<uuid>.<ext> and returns the token.
func (s *Store) CreateToken(ext string, write func(io.Writer) error) (string, error) {
	if !extPattern.MatchString(ext) {
		return "", fmt.Errorf("invalid extension %q", ext)
	}
	token := uuid.NewString()
	if err := writeAtomic(s.tempPath(token+"."+ext), write); err != nil {
		return "", fmt.Errorf("write token file: %w", err)
	}
	s.logger.Debug("created token file", zap.String("token", token), zap.String("ext", ext))
	return token, nil
}

// Open returns the token file for reading. A missing file or a malformed
// token yields ErrNotFound; a file older than the TTL is deleted and
// yields ErrExpired.
func (s *Store) Open(token, ext string) (*os.File, error) {
	if _, err := uuid.Parse(token); err != nil || !extPattern.MatchString(ext) {
		return nil, ErrNotFound
	}
	path := s.tempPath(token + "." + ext)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat token file: %w", err)
	}
	if s.now().Sub(info.ModTime()) > s.ttl {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove expired file", zap.String("path", path), zap.Error(err))
		}
		return nil, ErrExpired
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open token file: %w", err)
	}
	return f, nil
}

// Cleanup deletes token files older than the TTL and returns how many
// were removed.
func (s *Store) Cleanup() (int, error) {
	dir := filepath.Join(s.root, TempDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read tmp dir: %w", err)
	}
	now := s.now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove expired file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed expired files", zap.Int("count", removed))
	}
	return removed, nil
}

// StartJanitor runs Cleanup every interval until Close. Calling it twice
// is a no-op.
func (s *Store) StartJanitor(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go func(stop, stopped chan struct{}) {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := s.Cleanup(); err != nil {
					s.logger.Warn("cleanup failed", zap.Error(err))
				}
			}
		}
	}(s.stop, s.stopped)
}

// Close stops the janitor and waits for it to exit.
func (s *Store) Close() error {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		<-stopped
	}
	return nil
}
