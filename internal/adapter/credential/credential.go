// Package credential provides bearer token sources for the backend client.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"xunji/internal/domain"
	"xunji/internal/infra/config"
)

// Static is a fixed bearer token, typically from config or the environment.
type Static string

// Token implements domain.CredentialSource.
func (s Static) Token(context.Context) (string, error) { return string(s), nil }

// encPrefix marks an encrypted token file.
const encPrefix = "enc:"

// FileStore keeps the login result in a single file. When a passphrase is
// set the file is written encrypted; reading accepts both forms.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

// NewFileStore creates a store at path. An empty passphrase stores the
// token in plain JSON.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

// Token implements domain.CredentialSource. A missing file yields "".
func (s *FileStore) Token(ctx context.Context) (string, error) {
	tok, err := s.Load(ctx)
	if errors.Is(err, domain.ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Load returns the stored login, or ErrNoToken when there is none.
func (s *FileStore) Load(context.Context) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.NewDomainError("credential.Load", domain.ErrNoToken, "")
	}
	if err != nil {
		return nil, domain.WrapOp("credential.Load", err)
	}

	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, encPrefix) {
		if s.passphrase == "" {
			return nil, domain.NewDomainError("credential.Load", domain.ErrDecryption, "token file is encrypted but no passphrase is set")
		}
		plain, err := config.DecryptValue(strings.TrimPrefix(text, encPrefix), s.passphrase)
		if err != nil {
			return nil, domain.NewDomainError("credential.Load", domain.ErrDecryption, err.Error())
		}
		text = plain
	}

	var tok domain.Token
	if err := json.Unmarshal([]byte(text), &tok); err != nil {
		return nil, domain.WrapOp("credential.Load", fmt.Errorf("parse token file: %w", err))
	}
	if tok.AccessToken == "" {
		return nil, domain.NewDomainError("credential.Load", domain.ErrNoToken, "token file is empty")
	}
	return &tok, nil
}

// Save atomically replaces the stored login.
func (s *FileStore) Save(_ context.Context, tok *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return domain.WrapOp("credential.Save", err)
	}
	if s.passphrase != "" {
		enc, err := config.EncryptValue(string(data), s.passphrase)
		if err != nil {
			return domain.WrapOp("credential.Save", err)
		}
		data = []byte(encPrefix + enc)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return domain.WrapOp("credential.Save", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return domain.WrapOp("credential.Save", err)
	}
	return domain.WrapOp("credential.Save", os.Rename(tmp, s.path))
}

// Clear removes the stored login. Clearing an empty store is not an error.
func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.WrapOp("credential.Clear", err)
	}
	return nil
}

var (
	_ domain.CredentialSource = Static("")
	_ domain.CredentialSource = (*FileStore)(nil)
)
