package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"meater_sync/internal/meater"
)

// ErrEmptyToken is returned when asked to persist an empty token.
var ErrEmptyToken = &meater.Error{
	Op:    "save token",
	Class: meater.ClassConfig,
	Kind:  meater.KindMissingToken,
	Err:   errors.New("new token not provided"),
}

const jsonIndent = "    "

// TokenStore rewrites credentials.token in the config file. The whole
// read-modify-write runs under one lock and lands with a rename, so readers
// never observe a half-written file.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// SaveToken stores token and leaves every other field as it was.
func (s *TokenStore) SaveToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // keep numeric literals exactly as written
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	section := root
	if _, ok := root["platforms"]; ok {
		if section, err = findPlatform(root); err != nil {
			return err
		}
	}
	creds, ok := section["credentials"].(map[string]any)
	if !ok {
		return errors.New("credentials is not an object")
	}
	creds["token"] = token

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", jsonIndent)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return writeAtomic(s.path, buf.Bytes(), info.Mode().Perm())
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
