package posts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SPost-Planner/internal/bridge"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	storeFileMode   = 0o600
	storeDirMode    = 0o700
	tempFilePattern = ".posts-*.toml.tmp"
)

// Store keeps drafts and the cached LinkedIn connection in one TOML file.
// Writes replace the file atomically.
type Store struct {
	path string
	mu   *sync.RWMutex
	now  func() time.Time
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var (
	_ bridge.ConnectionState = (*Store)(nil)
	_ bridge.TokenSource     = (*Store)(nil)
)

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("posts store path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve posts store path: %w", err)
	}
	abs = filepath.Clean(abs)
	return &Store{path: abs, mu: lockForPath(abs), now: time.Now}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Save(ctx context.Context, d Draft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	encoded := toSchema(d)
	replaced := false
	for i := range file.Posts {
		if file.Posts[i].ID == encoded.ID {
			file.Posts[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		file.Posts = append(file.Posts, encoded)
	}
	return s.write(file)
}

func (s *Store) Get(ctx context.Context, id string) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return Draft{}, err
	}
	for _, p := range file.Posts {
		if p.ID == id {
			return fromSchema(p), nil
		}
	}
	return Draft{}, ErrPostNotFound
}

func (s *Store) List(ctx context.Context) ([]Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Draft, 0, len(file.Posts))
	for _, p := range file.Posts {
		out = append(out, fromSchema(p))
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	kept := file.Posts[:0]
	found := false
	for _, p := range file.Posts {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return ErrPostNotFound
	}
	file.Posts = kept
	return s.write(file)
}

func (s *Store) SaveConnection(ctx context.Context, c Connection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	file.Connection = &connectionSchema{
		MemberURN:   c.MemberURN,
		AccessToken: c.AccessToken,
		ExpiresAt:   formatTime(c.ExpiresAt),
		UpdatedAt:   formatTime(c.UpdatedAt),
	}
	return s.write(file)
}

// Connection returns the cached connection; a zero Connection when none.
func (s *Store) Connection(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return Connection{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return Connection{}, err
	}
	if file.Connection == nil {
		return Connection{}, nil
	}
	return Connection{
		MemberURN:   file.Connection.MemberURN,
		AccessToken: file.Connection.AccessToken,
		ExpiresAt:   parseTime(file.Connection.ExpiresAt),
		UpdatedAt:   parseTime(file.Connection.UpdatedAt),
	}, nil
}

func (s *Store) Connected(ctx context.Context) (bool, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return false, err
	}
	return c.Live(s.now()), nil
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	c, err := s.Connection(ctx)
	if err != nil {
		return "", err
	}
	if !c.Live(s.now()) {
		return "", ErrNotConnected
	}
	return c.AccessToken, nil
}

func (s *Store) read() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read posts file: %w", err)
	}
	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode posts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()
	return file, nil
}

func (s *Store) write(file fileSchema) error {
	file.applyDefaults()
	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create posts directory: %w", err)
	}
	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode posts file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp posts file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp posts file: %w", err)
	}
	if err := tmp.Chmod(storeFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp posts file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp posts file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace posts file: %w", err)
	}
	cleanup = false
	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()
	if mu, ok := pathLockMap[path]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
