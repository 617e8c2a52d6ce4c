package keystore

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketDeviceKeys = []byte("device_keys")

// MemoryDriver keeps key material in process memory. Intended for tests;
// anonymous identities stored here do not survive a restart.
type MemoryDriver struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{keys: make(map[string][]byte)}
}

func (d *MemoryDriver) Get(keyID string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	material, ok := d.keys[keyID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(material))
	copy(out, material)
	return out, nil
}

func (d *MemoryDriver) Put(keyID string, material []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored := make([]byte, len(material))
	copy(stored, material)
	d.keys[keyID] = stored
	return nil
}

func (d *MemoryDriver) Delete(keyID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, keyID)
	return nil
}

// BoltDriver persists key material in a local bbolt file. The file should
// live in a user-private directory; key material is stored unencrypted.
type BoltDriver struct {
	db *bolt.DB
}

// NewBoltDriver opens (or creates) the key database at path.
func NewBoltDriver(path string) (*BoltDriver, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open key database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDeviceKeys)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create key bucket: %w", err)
	}
	return &BoltDriver{db: db}, nil
}

// Close releases the database file.
func (d *BoltDriver) Close() error {
	return d.db.Close()
}

func (d *BoltDriver) Get(keyID string) ([]byte, error) {
	var material []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketDeviceKeys).Get([]byte(keyID)); v != nil {
			material = make([]byte, len(v))
			copy(material, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read key database: %w", err)
	}
	return material, nil
}

func (d *BoltDriver) Put(keyID string, material []byte) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeviceKeys).Put([]byte(keyID), material)
	})
	if err != nil {
		return fmt.Errorf("failed to write key database: %w", err)
	}
	return nil
}

func (d *BoltDriver) Delete(keyID string) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeviceKeys).Delete([]byte(keyID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete from key database: %w", err)
	}
	return nil
}
