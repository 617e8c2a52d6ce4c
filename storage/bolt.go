package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for the bolt-backed store.
var (
	bucketRefreshTokens   = []byte("refresh_tokens")
	bucketAnonymousKeyIDs = []byte("anonymous_key_ids")
)

// BoltStore persists session secrets in a local bbolt file. It is the
// fallback for headless hosts without a usable OS keyring; the file should
// live in a user-private directory.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRefreshTokens, bucketAnonymousKeyIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) get(bucket []byte, namespace string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(namespace)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read session database: %w", err)
	}
	return value, nil
}

func (s *BoltStore) put(bucket []byte, namespace, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(namespace), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to write session database: %w", err)
	}
	return nil
}

func (s *BoltStore) del(bucket []byte, namespace string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(namespace))
	})
	if err != nil {
		return fmt.Errorf("failed to delete from session database: %w", err)
	}
	return nil
}

func (s *BoltStore) RefreshToken(namespace string) (string, error) {
	return s.get(bucketRefreshTokens, namespace)
}

func (s *BoltStore) SetRefreshToken(namespace, token string) error {
	return s.put(bucketRefreshTokens, namespace, token)
}

func (s *BoltStore) DelRefreshToken(namespace string) error {
	return s.del(bucketRefreshTokens, namespace)
}

func (s *BoltStore) AnonymousKeyID(namespace string) (string, error) {
	return s.get(bucketAnonymousKeyIDs, namespace)
}

func (s *BoltStore) SetAnonymousKeyID(namespace, keyID string) error {
	return s.put(bucketAnonymousKeyIDs, namespace, keyID)
}

func (s *BoltStore) DelAnonymousKeyID(namespace string) error {
	return s.del(bucketAnonymousKeyIDs, namespace)
}
