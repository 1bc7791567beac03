// Package records encrypts patient medical records client-side and keeps
// the ciphertext in a content-addressed blob store. Records are immutable:
// every upload yields a new address, nothing is overwritten.
package records

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxPayloadSize is the upload ceiling for a single record.
const MaxPayloadSize = 10 << 20 // 10 MiB

const algorithmName = "AES-256-GCM"

// Metadata travels with a record so retrieval can render it correctly.
type Metadata struct {
	Owner      string `json:"owner"`
	MimeType   string `json:"mimeType"`
	ReportType string `json:"reportType"`
}

// envelope is the stored blob: cipher parameters plus the ciphertext itself.
// The nonce lives inside Ciphertext (prepended), so the envelope only names
// the algorithm. RecordID identifies the upload itself, independent of the
// content address.
type envelope struct {
	RecordID   string `json:"recordID"`
	Algorithm  string `json:"algorithm"`
	Owner      string `json:"owner"`
	MimeType   string `json:"mimeType"`
	ReportType string `json:"reportType"`
	UploadedAt int64  `json:"uploadedAt"`
	Ciphertext []byte `json:"ciphertext"`
}

// ownerIndex lists a patient's content addresses under a reserved,
// deliberately mutable blob key.
type ownerIndex struct {
	Addresses []string `json:"addresses"`
}

type Store struct {
	blobs BlobStore
	log   *zap.Logger
	now   func() time.Time
}

func NewStore(blobs BlobStore, log *zap.Logger) *Store {
	return &Store{blobs: blobs, log: log, now: time.Now}
}

// Upload encrypts plaintext under the patient key and stores the result.
// The returned content address is the SHA-256 of the ciphertext; a random
// nonce means re-uploading identical plaintext yields a fresh address.
func (s *Store) Upload(key, plaintext []byte, meta Metadata) (string, error) {
	if len(key) != keySize {
		return "", ErrEncryptionKeyMissing
	}
	if len(plaintext) > MaxPayloadSize {
		return "", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(plaintext))
	}

	ciphertext, err := seal(key, plaintext)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(ciphertext)
	address := hex.EncodeToString(digest[:])

	env := envelope{
		RecordID:   uuid.NewString(),
		Algorithm:  algorithmName,
		Owner:      meta.Owner,
		MimeType:   meta.MimeType,
		ReportType: meta.ReportType,
		UploadedAt: s.now().Unix(),
		Ciphertext: ciphertext,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to serialize record envelope: %w", err)
	}

	if err := s.blobs.Put(address, data); err != nil {
		return "", err
	}
	if err := s.appendToIndex(meta.Owner, address); err != nil {
		return "", err
	}

	s.log.Info("record uploaded",
		zap.String("owner", meta.Owner),
		zap.String("recordID", env.RecordID),
		zap.String("address", address),
		zap.Int("bytes", len(plaintext)))
	return address, nil
}

// Retrieve fetches and decrypts a record, returning the plaintext and its
// MIME type.
func (s *Store) Retrieve(address string, key []byte) ([]byte, string, error) {
	if len(key) != keySize {
		return nil, "", ErrEncryptionKeyMissing
	}

	data, err := s.blobs.Get(address)
	if err != nil {
		return nil, "", err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("%w: corrupt envelope", ErrDecryptionFailed)
	}

	plaintext, err := open(key, env.Ciphertext)
	if err != nil {
		return nil, "", err
	}
	return plaintext, env.MimeType, nil
}

// Owned lists the content addresses uploaded for a patient, newest last.
func (s *Store) Owned(owner string) ([]string, error) {
	index, err := s.loadIndex(owner)
	if err != nil {
		return nil, err
	}
	return index.Addresses, nil
}

func (s *Store) appendToIndex(owner string, address string) error {
	if owner == "" {
		return nil
	}
	index, err := s.loadIndex(owner)
	if err != nil {
		return err
	}
	index.Addresses = append(index.Addresses, address)

	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to serialize record index: %w", err)
	}
	return s.blobs.Put(indexAddress(owner), data)
}

func (s *Store) loadIndex(owner string) (ownerIndex, error) {
	index := ownerIndex{Addresses: []string{}}

	data, err := s.blobs.Get(indexAddress(owner))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return index, nil
		}
		return index, err
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return index, fmt.Errorf("failed to decode record index: %w", err)
	}
	return index, nil
}

func indexAddress(owner string) string {
	return "owner-index:" + owner
}
