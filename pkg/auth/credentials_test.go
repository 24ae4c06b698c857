package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStoreRetrieveDelete(t *testing.T) {
	store := NewMockStore()
	manager := NewManagerWithStores(store)

	require.NoError(t, manager.Store(&Token{Host: "api.example.com", Value: "tok_1234567890"}))
	assert.Equal(t, 1, store.Count())

	token, err := manager.Retrieve("api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok_1234567890", token.Value)
	assert.False(t, token.LastModified.IsZero())

	require.NoError(t, manager.Delete("api.example.com"))
	_, err = manager.Retrieve("api.example.com")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	assert.ErrorIs(t, manager.Delete("api.example.com"), ErrTokenNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(NewMockStore())
	assert.Error(t, manager.Store(nil))
	assert.Error(t, manager.Store(&Token{Value: "x"}))
	assert.Error(t, manager.Store(&Token{Host: "h", Value: "  "}))
}

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("locked")
	broken.RetrieveError = errors.New("locked")
	backup := NewMockStore()
	manager := NewManagerWithStores(broken, backup)

	require.NoError(t, manager.Store(&Token{Host: "h", Value: "secret-token"}))
	assert.Equal(t, 1, backup.Count())

	token, err := manager.Retrieve("h")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token.Value)
}

func TestManagerStoreAllFail(t *testing.T) {
	manager := NewManagerWithStores(NewEnvironmentStore())
	err := manager.Store(&Token{Host: "h", Value: "v"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestResolve(t *testing.T) {
	store := NewMockStore()
	require.NoError(t, store.Store(&Token{Host: "api.example.com:8443", Value: "from-keyring"}))
	manager := NewManagerWithStores(store)

	got, err := manager.Resolve("from-config", "https://api.example.com:8443/v1")
	require.NoError(t, err)
	assert.Equal(t, "from-config", got)

	got, err = manager.Resolve("", "https://api.example.com:8443/v1")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", got)

	_, err = manager.Resolve("", "https://other.example.com")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestEnvironmentStore(t *testing.T) {
	env := NewEnvironmentStore()

	t.Setenv(TokenEnvVar, "")
	_, err := env.Retrieve("h")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	t.Setenv(TokenEnvVar, "env-token")
	token, err := env.Retrieve("h")
	require.NoError(t, err)
	assert.Equal(t, "env-token", token.Value)
	assert.Equal(t, "h", token.Host)

	assert.ErrorIs(t, env.Store(token), ErrStoreUnavailable)
	assert.ErrorIs(t, env.Delete("h"), ErrStoreUnavailable)
}

func TestHostKey(t *testing.T) {
	tests := map[string]string{
		"https://api.example.com/v2": "api.example.com",
		"http://localhost:9000":      "localhost:9000",
		"api.example.com":            "api.example.com",
		" not a url ":                "not a url",
	}
	for in, want := range tests {
		assert.Equal(t, want, HostKey(in), in)
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "********", MaskToken("short"))
	assert.Equal(t, "tok_...7890", MaskToken("tok_1234567890"))
}

func TestShowLoginGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowLoginGuide(&buf, "api.example.com")
	assert.Contains(t, buf.String(), "api.example.com")
	assert.Contains(t, buf.String(), TokenEnvVar)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = store.Retrieve("api.example.com")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Store(&Token{Host: "api.example.com", Value: "tok_secret_value"}))
	require.NoError(t, store.Store(&Token{Host: "other.example.com", Value: "tok_other"}))

	// The token never appears in clear text
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "tok_secret_value")

	// A second store over the same directory reuses the generated passphrase
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	token, err := reopened.Retrieve("api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok_secret_value", token.Value)
	assert.FileExists(t, filepath.Join(dir, passphraseFile))

	require.NoError(t, reopened.Delete("api.example.com"))
	assert.ErrorIs(t, reopened.Delete("api.example.com"), ErrTokenNotFound)
	require.NoError(t, reopened.Delete("other.example.com"))
	assert.NoFileExists(t, path)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")

	t.Setenv(PassphraseEnvVar, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Token{Host: "h", Value: "v"}))

	t.Setenv(PassphraseEnvVar, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("h")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)
}

func TestManagerFallsBackToEncryptedFile(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "test-passphrase")
	t.Setenv(TokenEnvVar, "")
	fileStore, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "tokens.enc"))
	require.NoError(t, err)

	// Environment stays read-only; the file store takes the write
	manager := NewManagerWithStores(fileStore, NewEnvironmentStore())
	require.NoError(t, manager.Store(&Token{Host: "api.example.com", Value: "headless-token"}))

	got, err := manager.Resolve("", "https://api.example.com/v1")
	require.NoError(t, err)
	assert.Equal(t, "headless-token", got)

	require.NoError(t, manager.Delete("api.example.com"))
	_, err = manager.Retrieve("api.example.com")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
