// Package encrypt implements the archive package encryption scheme. A 32
// byte master key is expanded through HKDF into per-minute package keys, and
// sealed buffers are framed as IV || auth tag || ciphertext so a package can
// be opened with nothing but the master key and the key uuid it was sealed
// under.
package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/crypto/hash"
)

const (
	ivSize  = 12
	tagSize = 16
	keySize = 32
)

// Sealed is one encrypted archive package together with the key material
// that sealed it.
type Sealed struct {
	Encrypted   []byte
	DataHash    string
	Size        int
	RawKey      []byte
	PackageUUID string
	KeyUUID     string
}

// Encryptor owns the master key and the current minute key. All batches
// sealed within the same minute epoch share one derived key and one key
// uuid; the package uuid stays per batch.
type Encryptor struct {
	masterKey []byte

	mu          sync.Mutex
	minuteEpoch int64
	keyUUID     string
	rawKey      []byte

	now func() time.Time
}

// New builds an Encryptor from the configured master key, given as 64 hex
// characters.
func New(masterKeyHex string) (*Encryptor, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "master key is not valid hex")
	}
	if len(key) != keySize {
		return nil, errors.Errorf("master key must be %d bytes, got %d", keySize, len(key))
	}
	return &Encryptor{masterKey: key, now: time.Now}, nil
}

// EncryptBuffer seals plaintext under the current minute key. The sealed
// bytes, the data hash and the key uuid are all fixed here, upload retries
// must resubmit this exact buffer rather than re-encrypt.
func (e *Encryptor) EncryptBuffer(plaintext []byte, packageUUID string) (*Sealed, error) {
	keyUUID, rawKey, err := e.minuteKey()
	if err != nil {
		return nil, err
	}
	sealed, err := seal(plaintext, rawKey)
	if err != nil {
		return nil, err
	}
	h := hash.Hash(plaintext)
	return &Sealed{
		Encrypted:   sealed,
		DataHash:    hex.EncodeToString(h[:]),
		Size:        len(sealed),
		RawKey:      rawKey,
		PackageUUID: packageUUID,
		KeyUUID:     keyUUID,
	}, nil
}

// SealWithID seals plaintext under the key derived from the given id rather
// than the rotating minute key. Any holder of the master key can re-derive
// that key from the id alone, which is what lets counter snapshots be opened
// after a restart with no local state.
func (e *Encryptor) SealWithID(plaintext []byte, id string) (*Sealed, error) {
	rawKey, err := e.DeriveKey(id)
	if err != nil {
		return nil, err
	}
	sealed, err := seal(plaintext, rawKey)
	if err != nil {
		return nil, err
	}
	h := hash.Hash(plaintext)
	return &Sealed{
		Encrypted:   sealed,
		DataHash:    hex.EncodeToString(h[:]),
		Size:        len(sealed),
		RawKey:      rawKey,
		PackageUUID: id,
		KeyUUID:     id,
	}, nil
}

// MinuteKeyUUID returns the identifier of the current minute key, minting
// the key if this minute has none yet. The clear pipeline stamps this uuid
// on its uploads so both copies of a batch reference the same key.
func (e *Encryptor) MinuteKeyUUID() (string, error) {
	id, _, err := e.minuteKey()
	return id, err
}

// OpenWithID re-derives the key for the given id and opens the sealed
// buffer.
func (e *Encryptor) OpenWithID(sealed []byte, id string) ([]byte, error) {
	rawKey, err := e.DeriveKey(id)
	if err != nil {
		return nil, err
	}
	return Open(sealed, rawKey)
}

// DeriveKey expands the master key into the 32 byte key bound to the given
// key or package uuid.
func (e *Encryptor) DeriveKey(id string) ([]byte, error) {
	r := hkdf.New(sha256.New, e.masterKey, []byte(id), []byte(params.DeradConfig().KeyInfoString))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "could not expand key")
	}
	return key, nil
}

// minuteKey returns the cached key while the minute epoch still matches,
// otherwise mints a fresh key uuid and derives its key.
func (e *Encryptor) minuteKey() (string, []byte, error) {
	epoch := e.now().UnixMilli() / 60_000
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rawKey != nil && e.minuteEpoch == epoch {
		return e.keyUUID, e.rawKey, nil
	}
	id := fmt.Sprintf("%s-%d-%s", params.DeradConfig().KeyUUIDPrefix, epoch, uuid.NewString())
	key, err := e.DeriveKey(id)
	if err != nil {
		return "", nil, err
	}
	e.minuteEpoch, e.keyUUID, e.rawKey = epoch, id, key
	return id, key, nil
}

// Open reverses seal given the raw key.
func Open(sealed, rawKey []byte) ([]byte, error) {
	if len(sealed) < ivSize+tagSize {
		return nil, errors.New("sealed buffer too short")
	}
	iv := sealed[:ivSize]
	tag := sealed[ivSize : ivSize+tagSize]
	ct := sealed[ivSize+tagSize:]

	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}
	joined := make([]byte, 0, len(ct)+len(tag))
	joined = append(joined, ct...)
	joined = append(joined, tag...)
	plaintext, err := gcm.Open(nil, iv, joined, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not authenticate sealed buffer")
	}
	return plaintext, nil
}

// seal encrypts plaintext and reorders the AEAD output into the archive
// frame, IV then auth tag then ciphertext.
func seal(plaintext, rawKey []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, "could not draw iv")
	}
	ct := gcm.Seal(nil, iv, plaintext, nil)

	out := make([]byte, 0, ivSize+len(ct))
	out = append(out, iv...)
	out = append(out, ct[len(ct)-tagSize:]...)
	out = append(out, ct[:len(ct)-tagSize]...)
	return out, nil
}

func newGCM(rawKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, errors.Wrap(err, "could not init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "could not init gcm")
	}
	return gcm, nil
}
