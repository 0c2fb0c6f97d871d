package hash_test

import (
	"encoding/hex"
	"testing"

	"github.com/derad-network/derad/crypto/hash"
	"github.com/derad-network/derad/testing/assert"
)

func TestHash(t *testing.T) {
	h := hash.Hash([]byte("hello"))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hex.EncodeToString(h[:]))

	// Same input must hash to the same value on repeat calls through the pool.
	h2 := hash.Hash([]byte("hello"))
	assert.DeepEqual(t, h, h2)
}

func TestFastSum64(t *testing.T) {
	a := hash.FastSum64([]byte("37.6188|-122.3756|37000|37125|575.3|238.2|64|7700|none|KLM855"))
	b := hash.FastSum64([]byte("37.6188|-122.3756|37000|37125|575.3|238.2|64|7700|none|KLM855"))
	c := hash.FastSum64([]byte("37.6188|-122.3756|36975|37125|575.3|238.2|64|7700|none|KLM855"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
