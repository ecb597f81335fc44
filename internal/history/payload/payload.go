// Package payload persists what went into and came out of logged tool calls.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const shardPrefixLen = 2

var errInvalidID = errors.New("invalid id")

// Payload is the request and output of one settled call.
type Payload struct {
	Params map[string]any `json:"params,omitempty"`
	Output string         `json:"output,omitempty"`
	Err    string         `json:"err,omitempty"`
}

// Store keeps one JSON file per call, sharded by ID prefix.
type Store struct {
	dir string
}

// Open prepares a payload store rooted at dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("payload: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) (string, error) {
	if len(id) < shardPrefixLen {
		return "", fmt.Errorf("payload: %w: %q", errInvalidID, id)
	}
	return filepath.Join(s.dir, id[:shardPrefixLen], id+".json"), nil
}

// Write stores the payload for the given call ID. The file is written to a
// temp path, synced, and renamed into place.
func (s *Store) Write(id string, p Payload) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "payload-*.tmp")
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	_ = syncDir(dir)
	return nil
}

// Read loads the payload for the given call ID.
func (s *Store) Read(id string) (Payload, error) {
	path, err := s.path(id)
	if err != nil {
		return Payload{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("payload: %w", err)
	}
	defer file.Close() //nolint:errcheck

	var p Payload
	if err := json.NewDecoder(file).Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("payload: %w", err)
	}
	return p, nil
}

// Delete removes the payload for the given call ID, if present.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("payload: %w", err)
	}
	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close() //nolint:errcheck
	return d.Sync()
}
