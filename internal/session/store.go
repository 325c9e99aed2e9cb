package session

import (
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
)

// Credentials is what survives process restarts: the bearer token plus the
// identity fields returned at login.
type Credentials struct {
    Token    string `json:"token"`
    Username string `json:"username"`
    Email    string `json:"email"`
}

// CredentialStore persists credentials for the lifetime of a session.
type CredentialStore interface {
    Load() (*Credentials, error)
    Save(creds *Credentials) error
    Clear() error
}

// FileStore keeps credentials in a JSON file, the CLI equivalent of the
// browser's local storage.
type FileStore struct {
    path string
}

func NewFileStore(path string) *FileStore {
    return &FileStore{path: path}
}

func (f *FileStore) Load() (*Credentials, error) {
    data, err := os.ReadFile(f.path)
    if err != nil {
        if errors.Is(err, fs.ErrNotExist) {
            return nil, nil
        }
        return nil, fmt.Errorf("failed to read credentials file: %w", err)
    }

    var creds Credentials
    if err := json.Unmarshal(data, &creds); err != nil {
        return nil, fmt.Errorf("failed to parse credentials file: %w", err)
    }
    if creds.Token == "" {
        return nil, nil
    }
    return &creds, nil
}

func (f *FileStore) Save(creds *Credentials) error {
    if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
        return fmt.Errorf("failed to create credentials directory: %w", err)
    }

    data, err := json.Marshal(creds)
    if err != nil {
        return fmt.Errorf("failed to marshal credentials: %w", err)
    }
    if err := os.WriteFile(f.path, data, 0o600); err != nil {
        return fmt.Errorf("failed to write credentials file: %w", err)
    }
    return nil
}

func (f *FileStore) Clear() error {
    if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
        return fmt.Errorf("failed to remove credentials file: %w", err)
    }
    return nil
}

// MemoryStore is an in-process store for tests and throwaway sessions.
type MemoryStore struct {
    creds *Credentials
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*Credentials, error) { return m.creds, nil }

func (m *MemoryStore) Save(creds *Credentials) error {
    copied := *creds
    m.creds = &copied
    return nil
}

func (m *MemoryStore) Clear() error {
    m.creds = nil
    return nil
}
