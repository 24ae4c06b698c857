package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnvVar overrides the generated passphrase file
	PassphraseEnvVar = "CUSTSYNC_PASSPHRASE"
	passphraseFile   = ".passphrase"
)

// EncryptedFileStore implements TokenStore using an AES-GCM encrypted file.
// It is the writable fallback on hosts without a system keychain.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

type encryptedFile struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a store at path. The passphrase comes from
// PassphraseEnvVar, or a generated file next to path.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Path returns the encrypted file location
func (e *EncryptedFileStore) Path() string {
	return e.path
}

func (e *EncryptedFileStore) Store(token *Token) error {
	if token == nil || token.Host == "" {
		return ErrInvalidToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, salt, err := e.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load existing tokens: %w", err)
	}
	if tokens == nil {
		tokens = make(map[string]Token)
	}
	tokens[token.Host] = *token
	return e.save(tokens, salt)
}

func (e *EncryptedFileStore) Retrieve(host string) (*Token, error) {
	if host == "" {
		return nil, ErrInvalidToken
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens, _, err := e.load()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	token, ok := tokens[host]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (e *EncryptedFileStore) Delete(host string) error {
	if host == "" {
		return ErrInvalidToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, salt, err := e.load()
	if errors.Is(err, os.ErrNotExist) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	if _, ok := tokens[host]; !ok {
		return ErrTokenNotFound
	}

	delete(tokens, host)
	if len(tokens) == 0 {
		return os.Remove(e.path)
	}
	return e.save(tokens, salt)
}

// load decrypts the file. The returned salt is reused on save.
func (e *EncryptedFileStore) load() (map[string]Token, []byte, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, nil, err
	}

	var file encryptedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plaintext, err := decrypt(ciphertext, e.key(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}

	var tokens map[string]Token
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tokens: %w", err)
	}
	return tokens, salt, nil
}

func (e *EncryptedFileStore) save(tokens map[string]Token, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	ciphertext, err := encrypt(plaintext, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	content, err := json.MarshalIndent(encryptedFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
		Version:   1,
		Modified:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func loadPassphrase(dir string) (string, error) {
	if pass := os.Getenv(PassphraseEnvVar); pass != "" {
		return pass, nil
	}

	path := filepath.Join(dir, passphraseFile)
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
