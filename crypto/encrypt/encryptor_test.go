package encrypt

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/derad-network/derad/crypto/hash"
	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
)

const testMasterKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestNew_RejectsBadMasterKeys(t *testing.T) {
	_, err := New("not hex at all")
	require.ErrorContains(t, "not valid hex", err)

	_, err = New("deadbeef")
	require.ErrorContains(t, "must be 32 bytes", err)
}

func TestEncryptBuffer_RoundTrip(t *testing.T) {
	e, err := New(testMasterKey)
	require.NoError(t, err)

	plaintext := []byte("one aircraft batch, parquet encoded")
	s, err := e.EncryptBuffer(plaintext, "2d1b7d2c-0c5e-4b0a-9a63-4f1d6a1c2e9b")
	require.NoError(t, err)

	assert.Equal(t, ivSize+tagSize+len(plaintext), len(s.Encrypted))
	assert.Equal(t, len(s.Encrypted), s.Size)
	assert.Equal(t, "2d1b7d2c-0c5e-4b0a-9a63-4f1d6a1c2e9b", s.PackageUUID)

	h := hash.Hash(plaintext)
	assert.Equal(t, hex.EncodeToString(h[:]), s.DataHash)

	got, err := Open(s.Encrypted, s.RawKey)
	require.NoError(t, err)
	assert.DeepEqual(t, plaintext, got)

	// A second seal of the same bytes must draw a fresh IV.
	s2, err := e.EncryptBuffer(plaintext, "another")
	require.NoError(t, err)
	assert.Equal(t, false, bytes.Equal(s.Encrypted, s2.Encrypted))
}

func TestMinuteKeyRotation(t *testing.T) {
	e, err := New(testMasterKey)
	require.NoError(t, err)

	now := time.UnixMilli(59_900)
	e.now = func() time.Time { return now }

	a, err := e.EncryptBuffer([]byte("a"), "p1")
	require.NoError(t, err)
	assert.Equal(t, true, strings.HasPrefix(a.KeyUUID, "enckey-0-"))

	now = time.UnixMilli(60_100)
	b, err := e.EncryptBuffer([]byte("b"), "p2")
	require.NoError(t, err)
	assert.NotEqual(t, a.KeyUUID, b.KeyUUID)
	assert.Equal(t, true, strings.HasPrefix(b.KeyUUID, "enckey-1-"))

	now = time.UnixMilli(60_200)
	c, err := e.EncryptBuffer([]byte("c"), "p3")
	require.NoError(t, err)
	assert.Equal(t, b.KeyUUID, c.KeyUUID)
	assert.DeepEqual(t, b.RawKey, c.RawKey)
}

func TestMinuteKeyUUID_MatchesSealedBuffers(t *testing.T) {
	e, err := New(testMasterKey)
	require.NoError(t, err)

	now := time.UnixMilli(59_900)
	e.now = func() time.Time { return now }

	id, err := e.MinuteKeyUUID()
	require.NoError(t, err)
	s, err := e.EncryptBuffer([]byte("a"), "p1")
	require.NoError(t, err)
	assert.Equal(t, id, s.KeyUUID, "clear and encrypted uploads of one minute share the uuid")

	now = time.UnixMilli(60_100)
	rotated, err := e.MinuteKeyUUID()
	require.NoError(t, err)
	assert.NotEqual(t, id, rotated)
}

func TestSealWithID_RederivableAfterRestart(t *testing.T) {
	e, err := New(testMasterKey)
	require.NoError(t, err)

	plaintext := []byte(`{"timestamp":1751069515000,"stats":{"totalPolls":42}}`)
	s, err := e.SealWithID(plaintext, "system-stats-backup")
	require.NoError(t, err)
	assert.Equal(t, "system-stats-backup", s.KeyUUID)
	assert.Equal(t, "system-stats-backup", s.PackageUUID)

	// A brand new encryptor holding the same master key must open it.
	e2, err := New(testMasterKey)
	require.NoError(t, err)
	got, err := e2.OpenWithID(s.Encrypted, "system-stats-backup")
	require.NoError(t, err)
	assert.DeepEqual(t, plaintext, got)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	e, err := New(testMasterKey)
	require.NoError(t, err)

	k1, err := e.DeriveKey("enckey-29184491-a")
	require.NoError(t, err)
	k2, err := e.DeriveKey("enckey-29184491-a")
	require.NoError(t, err)
	assert.DeepEqual(t, k1, k2)

	k3, err := e.DeriveKey("enckey-29184491-b")
	require.NoError(t, err)
	assert.Equal(t, false, bytes.Equal(k1, k3))
}

func TestOpen_RejectsTamperedBuffers(t *testing.T) {
	e, err := New(testMasterKey)
	require.NoError(t, err)

	s, err := e.EncryptBuffer([]byte("payload"), "p")
	require.NoError(t, err)

	s.Encrypted[ivSize] ^= 0x01
	_, err = Open(s.Encrypted, s.RawKey)
	require.ErrorContains(t, "could not authenticate", err)

	_, err = Open([]byte("short"), s.RawKey)
	require.ErrorContains(t, "too short", err)
}
