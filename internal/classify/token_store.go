package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"faceomatic/internal/fileutil"
)

// Token is a cached access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// validAt reports whether the token may still be used at now, refreshing skew
// early.
func (t Token) validAt(now time.Time, skew time.Duration) bool {
	return t.AccessToken != "" && now.Add(skew).Before(t.ExpiresAt)
}

// TokenStore abstracts persistence for the access token.
type TokenStore interface {
	Load() (Token, error)
	Save(Token) error
}

// FileTokenStore writes the token to a JSON file readable only by the owner.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore builds a FileTokenStore rooted at the provided path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load reads the token from disk. A missing file resolves to an empty token.
func (s *FileTokenStore) Load() (Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Token{}, nil
		}
		return Token{}, fmt.Errorf("read classifier token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return Token{}, fmt.Errorf("decode classifier token: %w", err)
	}
	return token, nil
}

// Save persists the token with restricted permissions.
func (s *FileTokenStore) Save(token Token) error {
	if err := fileutil.WriteJSONAtomic(s.path, token, 0o600); err != nil {
		return fmt.Errorf("write classifier token: %w", err)
	}
	return nil
}

type memoryTokenStore struct{}

func (memoryTokenStore) Load() (Token, error) { return Token{}, nil }
func (memoryTokenStore) Save(Token) error     { return nil }
