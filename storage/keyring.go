package storage

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name used for keyring entries.
const DefaultKeyringService = "authsession"

// KeyringStore persists session secrets in the OS keyring (Keychain,
// Secret Service, Windows Credential Manager). Entries are keyed by
// namespace so independent containers in one process do not collide.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed session store. An empty service
// falls back to DefaultKeyringService.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

// IsAvailable reports whether the OS keyring can be used on this host.
func (s *KeyringStore) IsAvailable() bool {
	const probeKey = "_authsession_availability_probe"
	if err := keyring.Set(s.service, probeKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(s.service, probeKey)
	return true
}

func refreshTokenKey(namespace string) string {
	return fmt.Sprintf("%s/refresh_token", namespace)
}

func anonymousKeyIDKey(namespace string) string {
	return fmt.Sprintf("%s/anonymous_key_id", namespace)
}

func (s *KeyringStore) get(key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return value, nil
}

func (s *KeyringStore) del(key string) error {
	err := keyring.Delete(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}

func (s *KeyringStore) RefreshToken(namespace string) (string, error) {
	return s.get(refreshTokenKey(namespace))
}

func (s *KeyringStore) SetRefreshToken(namespace, token string) error {
	if err := keyring.Set(s.service, refreshTokenKey(namespace), token); err != nil {
		return fmt.Errorf("failed to store refresh token in keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) DelRefreshToken(namespace string) error {
	return s.del(refreshTokenKey(namespace))
}

func (s *KeyringStore) AnonymousKeyID(namespace string) (string, error) {
	return s.get(anonymousKeyIDKey(namespace))
}

func (s *KeyringStore) SetAnonymousKeyID(namespace, keyID string) error {
	if err := keyring.Set(s.service, anonymousKeyIDKey(namespace), keyID); err != nil {
		return fmt.Errorf("failed to store anonymous key id in keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) DelAnonymousKeyID(namespace string) error {
	return s.del(anonymousKeyIDKey(namespace))
}
