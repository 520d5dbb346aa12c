package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const apiKeyUser = "openai-api-key"

// ErrNoAPIKey is returned when no key is stored or configured
var ErrNoAPIKey = errors.New("configure your OpenAI key first")

// KeyStore keeps the OpenAI key in the OS keyring, falling back to a key supplied
// through the environment
type KeyStore struct {
	service  string
	fallback string
}

// NewKeyStore creates a key store under the keyring service name
func NewKeyStore(service, fallback string) *KeyStore {
	return &KeyStore{service: service, fallback: strings.TrimSpace(fallback)}
}

// Set stores key in the keyring
func (k *KeyStore) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	if err := keyring.Set(k.service, apiKeyUser, key); err != nil {
		return fmt.Errorf("store API key: %w", err)
	}
	return nil
}

// Get returns the stored key, then the fallback
func (k *KeyStore) Get() (string, error) {
	key, err := keyring.Get(k.service, apiKeyUser)
	switch {
	case err == nil && key != "":
		return key, nil
	case err != nil && !errors.Is(err, keyring.ErrNotFound):
		if k.fallback != "" {
			return k.fallback, nil
		}
		return "", fmt.Errorf("read API key: %w", err)
	}
	if k.fallback != "" {
		return k.fallback, nil
	}
	return "", ErrNoAPIKey
}

// Delete removes the stored key. Deleting a missing key is not an error.
func (k *KeyStore) Delete() error {
	if err := keyring.Delete(k.service, apiKeyUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete API key: %w", err)
	}
	return nil
}

// Configured reports whether any key is available
func (k *KeyStore) Configured() bool {
	key, err := k.Get()
	return err == nil && key != ""
}

// Source names where the key comes from: keyring, environment or none
func (k *KeyStore) Source() string {
	if key, err := keyring.Get(k.service, apiKeyUser); err == nil && key != "" {
		return "keyring"
	}
	if k.fallback != "" {
		return "environment"
	}
	return "none"
}
