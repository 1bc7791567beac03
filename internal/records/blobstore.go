package records

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

var (
	ErrPayloadTooLarge      = errors.New("payload exceeds size ceiling")
	ErrEncryptionKeyMissing = errors.New("no encryption key available")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrNotFound             = errors.New("record not found")
)

// BlobStore is the content-addressed backend holding ciphertext envelopes.
type BlobStore interface {
	Put(address string, data []byte) error
	Get(address string) ([]byte, error)
	Close() error
}

// LevelBlobStore persists blobs in LevelDB. Addresses are opaque here; the
// record store computes them from ciphertext hashes.
type LevelBlobStore struct {
	db *leveldb.DB
}

func OpenLevelBlobStore(path string) (*LevelBlobStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store at %s: %w", path, err)
	}
	return &LevelBlobStore{db: db}, nil
}

func (s *LevelBlobStore) Put(address string, data []byte) error {
	if err := s.db.Put(blobKey(address), data, nil); err != nil {
		return fmt.Errorf("failed to store blob %s: %w", address, err)
	}
	return nil
}

func (s *LevelBlobStore) Get(address string) ([]byte, error) {
	data, err := s.db.Get(blobKey(address), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch blob %s: %w", address, err)
	}
	return data, nil
}

func (s *LevelBlobStore) Close() error {
	return s.db.Close()
}

func blobKey(address string) []byte {
	return []byte("blob_" + address)
}
