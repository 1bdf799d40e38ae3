// Package auth manages the local shared secret that clients present to the
// server as a bearer token.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSecret is returned by ReadSecret when the server has not created a
// secret yet.
var ErrNoSecret = errors.New("no secret found, start the server first")

// LoadOrCreateSecret reads the secret at path, or generates and persists a
// new 256-bit hex-encoded secret if the file is missing or empty.
func LoadOrCreateSecret(path string) (string, error) {
	secret, err := ReadSecret(path)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, ErrNoSecret) {
		return "", err
	}
	return RotateSecret(path)
}

// ReadSecret reads an existing secret without creating one.
func ReadSecret(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoSecret
	}
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", ErrNoSecret
	}
	return secret, nil
}

// RotateSecret generates a new secret, replacing the existing one.
// Connected clients must re-read it to reconnect.
func RotateSecret(path string) (string, error) {
	secret, err := generateSecret()
	if err != nil {
		return "", err
	}

	if err := writeSecret(path, secret); err != nil {
		return "", err
	}

	return secret, nil
}

// Equal compares a presented token with the secret in constant time.
func Equal(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(token)) == 1
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func writeSecret(path, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	return nil
}
