// Package keystore implements the device-key store used for anonymous
// authentication: ECDSA P-256 keypairs created per device, persisted through
// a pluggable driver, and used to sign anonymous-request assertions.
package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"sync"

	"go.uber.org/zap"

	authsession "github.com/authsession/authsession-go"
)

// Driver persists raw private-key material by key ID. Get returns
// (nil, nil) when no key exists.
type Driver interface {
	Get(keyID string) ([]byte, error)
	Put(keyID string, material []byte) error
	Delete(keyID string) error
}

// Store is a software key store backed by a Driver. Keys survive process
// restarts as long as the driver's backing storage does; losing the backing
// storage while the anonymous key ID mapping remains is unrecoverable.
type Store struct {
	driver Driver
	logger *zap.Logger

	mu   sync.Mutex
	keys map[string]*ecdsa.PrivateKey
}

// New creates a key store over the given driver. A nil logger disables
// logging.
func New(driver Driver, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		driver: driver,
		logger: logger.Named("keystore"),
		keys:   make(map[string]*ecdsa.PrivateKey),
	}
}

// LoadKey returns the device key stored under keyID, or (nil, nil) when no
// key has been generated yet.
func (s *Store) LoadKey(keyID string) (*authsession.DeviceKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.loadPrivateKeyLocked(keyID)
	if err != nil {
		return nil, err
	}
	if priv == nil {
		return nil, nil
	}
	return deviceKey(keyID, &priv.PublicKey), nil
}

// GenerateKey creates and persists a fresh P-256 keypair under keyID.
func (s *Store) GenerateKey(keyID string) (*authsession.DeviceKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}

	material, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode device key: %w", err)
	}
	if err := s.driver.Put(keyID, material); err != nil {
		return nil, fmt.Errorf("failed to persist device key: %w", err)
	}

	s.keys[keyID] = priv
	s.logger.Info("Generated new device key", zap.String("key_id", keyID))

	return deviceKey(keyID, &priv.PublicKey), nil
}

// Sign signs the JWS signing input with the device private key and returns
// the raw r||s ES256 signature.
func (s *Store) Sign(keyID string, signingInput []byte) ([]byte, error) {
	s.mu.Lock()
	priv, err := s.loadPrivateKeyLocked(keyID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if priv == nil {
		return nil, fmt.Errorf("no private key stored under key id %s", keyID)
	}

	digest := sha256.Sum256(signingInput)
	r, ss, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}

	// JWS ES256 signatures are the fixed-width big-endian concatenation of
	// r and s, not ASN.1 DER.
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	ss.FillBytes(sig[32:])
	return sig, nil
}

// DeleteKey removes the keypair stored under keyID. Deleting a missing key
// is not an error.
func (s *Store) DeleteKey(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, keyID)
	if err := s.driver.Delete(keyID); err != nil {
		return fmt.Errorf("failed to delete device key: %w", err)
	}
	return nil
}

// loadPrivateKeyLocked resolves the private key from the cache or the
// driver. Returns (nil, nil) when no key exists.
func (s *Store) loadPrivateKeyLocked(keyID string) (*ecdsa.PrivateKey, error) {
	if priv, ok := s.keys[keyID]; ok {
		return priv, nil
	}

	material, err := s.driver.Get(keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device key: %w", err)
	}
	if material == nil {
		return nil, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(material)
	if err != nil {
		return nil, fmt.Errorf("failed to decode device key: %w", err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("stored device key is not an ECDSA key")
	}

	s.keys[keyID] = priv
	return priv, nil
}

// deviceKey builds the public half of a keypair in JWK form. The private
// coordinate never leaves the store.
func deviceKey(keyID string, pub *ecdsa.PublicKey) *authsession.DeviceKey {
	coord := func(b []byte) string {
		padded := make([]byte, 32)
		copy(padded[32-len(b):], b)
		return base64.RawURLEncoding.EncodeToString(padded)
	}
	return &authsession.DeviceKey{
		KeyID: keyID,
		PublicJWK: map[string]any{
			"kid": keyID,
			"kty": "EC",
			"crv": "P-256",
			"alg": "ES256",
			"use": "sig",
			"x":   coord(pub.X.Bytes()),
			"y":   coord(pub.Y.Bytes()),
		},
	}
}
