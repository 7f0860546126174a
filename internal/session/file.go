package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/moolen/sleuth/internal/models"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// FileStore writes one JSON document per session into a directory.
// Writes go to a temporary file that is renamed into place.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", models.NewValidationError("invalid session id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

func (f *FileStore) Get(_ context.Context, id string) (models.SessionState, error) {
	p, err := f.path(id)
	if err != nil {
		return models.SessionState{}, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return models.SessionState{}, models.NewSessionNotFound(id)
	}
	if err != nil {
		return models.SessionState{}, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return Decode(data)
}

func (f *FileStore) Put(_ context.Context, s models.SessionState) error {
	p, err := f.path(s.ID)
	if err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+s.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write session %s: %w", s.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace session %s: %w", s.ID, err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	p, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Encode returns the persisted JSON form of a session.
func Encode(s models.SessionState) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	return data, nil
}

// Decode parses a session written by Encode.
func Decode(data []byte) (models.SessionState, error) {
	var s models.SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return models.SessionState{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}
