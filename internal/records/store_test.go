package records

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	blobs, err := OpenLevelBlobStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { blobs.Close() })
	return NewStore(blobs, zap.NewNop())
}

func TestUploadRetrieveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	key, err := DeriveKey("correct horse battery staple", "0xpatient")
	require.NoError(t, err)

	plaintext := []byte("MRI scan, left knee, 2026-08-12")
	meta := Metadata{Owner: "0xpatient", MimeType: "application/pdf", ReportType: "imaging"}

	address, err := store.Upload(key, plaintext, meta)
	require.NoError(t, err)
	require.NotEmpty(t, address)

	got, mimeType, err := store.Retrieve(address, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	assert.Equal(t, "application/pdf", mimeType)
}

func TestRetrieveWrongKeyFailsClosed(t *testing.T) {
	store := newTestStore(t)
	key, err := DeriveKey("right passphrase", "0xpatient")
	require.NoError(t, err)
	wrongKey, err := DeriveKey("wrong passphrase", "0xpatient")
	require.NoError(t, err)

	address, err := store.Upload(key, []byte("confidential"), Metadata{Owner: "0xpatient"})
	require.NoError(t, err)

	got, _, err := store.Retrieve(address, wrongKey)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Nil(t, got, "no partial plaintext on decryption failure")
}

func TestRetrieveUnknownAddress(t *testing.T) {
	store := newTestStore(t)
	key, err := DeriveKey("pass", "0xpatient")
	require.NoError(t, err)

	_, _, err = store.Retrieve("deadbeef", key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRejectsOversizePayload(t *testing.T) {
	store := newTestStore(t)
	key, err := DeriveKey("pass", "0xpatient")
	require.NoError(t, err)

	oversized := bytes.Repeat([]byte{0x1}, MaxPayloadSize+1)
	_, err = store.Upload(key, oversized, Metadata{Owner: "0xpatient"})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestUploadRequiresKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Upload(nil, []byte("data"), Metadata{Owner: "0xpatient"})
	assert.ErrorIs(t, err, ErrEncryptionKeyMissing)

	_, err = store.Upload([]byte("short"), []byte("data"), Metadata{Owner: "0xpatient"})
	assert.ErrorIs(t, err, ErrEncryptionKeyMissing)
}

func TestReuploadYieldsFreshAddress(t *testing.T) {
	store := newTestStore(t)
	key, err := DeriveKey("pass", "0xpatient")
	require.NoError(t, err)

	plaintext := []byte("same bytes")
	first, err := store.Upload(key, plaintext, Metadata{Owner: "0xpatient"})
	require.NoError(t, err)
	second, err := store.Upload(key, plaintext, Metadata{Owner: "0xpatient"})
	require.NoError(t, err)

	// random nonce per upload: identical plaintext never collides
	assert.NotEqual(t, first, second)
}

func TestOwnedIndex(t *testing.T) {
	store := newTestStore(t)
	key, err := DeriveKey("pass", "0xpatient")
	require.NoError(t, err)

	owned, err := store.Owned("0xpatient")
	require.NoError(t, err)
	assert.Empty(t, owned)

	first, err := store.Upload(key, []byte("one"), Metadata{Owner: "0xpatient"})
	require.NoError(t, err)
	second, err := store.Upload(key, []byte("two"), Metadata{Owner: "0xpatient"})
	require.NoError(t, err)

	owned, err = store.Owned("0xpatient")
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, owned)

	// records are not cross-listed between owners
	other, err := store.Owned("0xother")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeriveKeyDistinctPerPatient(t *testing.T) {
	a, err := DeriveKey("shared passphrase", "0xalice")
	require.NoError(t, err)
	b, err := DeriveKey("shared passphrase", "0xbob")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)

	_, err = DeriveKey("", "0xalice")
	assert.ErrorIs(t, err, ErrEncryptionKeyMissing)
}
