package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedStore is a small AEAD-encrypted JSON key/value store at
// ~/.loa/credentials/store.json.enc, keyed by a locally-generated key at
// ~/.loa/credentials/.key (0600). This replaces the Python original's Fernet
// (AES-128-CBC+HMAC) with ChaCha20-Poly1305 from golang.org/x/crypto.
type EncryptedStore struct {
	dir string

	mu  sync.Mutex
	aed cipher.AEAD // never set: aeadCipher re-reads the key file on every call
}

func defaultCredentialsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".loa", "credentials"), nil
}

// NewEncryptedStore roots the store at dir, or the default
// ~/.loa/credentials when dir is empty.
func NewEncryptedStore(dir string) (*EncryptedStore, error) {
	if dir == "" {
		d, err := defaultCredentialsDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &EncryptedStore{dir: dir}, nil
}

func (s *EncryptedStore) keyPath() string  { return filepath.Join(s.dir, ".key") }
func (s *EncryptedStore) dataPath() string { return filepath.Join(s.dir, "store.json.enc") }

func (s *EncryptedStore) ensureDir() error {
	return os.MkdirAll(s.dir, 0o700)
}

// aeadCipher lazily loads the store's key, generating one on first use.
func (s *EncryptedStore) aeadCipher() (cipher.AEAD, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	key, err := os.ReadFile(s.keyPath())
	if errors.Is(err, os.ErrNotExist) {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		if err := os.WriteFile(s.keyPath(), key, 0o600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("credentials: corrupt key file")
	}

	return chacha20poly1305.New(key)
}

func (s *EncryptedStore) load() (map[string]string, error) {
	aead, err := s.aeadCipher()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.dataPath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if len(raw) < nonceSize {
		// Decrypt failure: treat store as empty rather than failing hard,
		// matching the Python original's "corrupt store = empty" contract.
		return map[string]string{}, nil
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return map[string]string{}, nil
	}

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return map[string]string{}, nil
	}
	return values, nil
}

func (s *EncryptedStore) save(values map[string]string) error {
	aead, err := s.aeadCipher()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(values)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return os.WriteFile(s.dataPath(), append(nonce, ciphertext...), 0o600)
}

// Get returns a stored credential's value.
func (s *EncryptedStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false
	}
	v, ok := values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set stores or overwrites a credential.
func (s *EncryptedStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Delete removes a credential, if present.
func (s *EncryptedStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	delete(values, key)
	return s.save(values)
}

// ListKeys returns the stored credential ids, not their values.
func (s *EncryptedStore) ListKeys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys, nil
}

// EncryptedFileProvider adapts an EncryptedStore to the Provider interface.
type EncryptedFileProvider struct {
	store *EncryptedStore
}

// NewEncryptedFileProvider wraps a store rooted at dir (or the default
// location when empty).
func NewEncryptedFileProvider(dir string) (*EncryptedFileProvider, error) {
	store, err := NewEncryptedStore(dir)
	if err != nil {
		return nil, err
	}
	return &EncryptedFileProvider{store: store}, nil
}

func (p *EncryptedFileProvider) Get(key string) (string, bool) { return p.store.Get(key) }
func (p *EncryptedFileProvider) Name() string                  { return "encrypted" }
