// Package hash includes all hashing utilities used across the node.
package hash

import (
	"hash"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/minio/sha256-simd"
)

var sha256Pool = sync.Pool{New: func() interface{} {
	return sha256.New()
}}

// Hash defines a function that returns the sha256 checksum of the data passed in.
func Hash(data []byte) [32]byte {
	h, ok := sha256Pool.Get().(hash.Hash)
	if !ok {
		h = sha256.New()
	}
	defer sha256Pool.Put(h)
	h.Reset()

	var b [32]byte

	// The hash interface never returns an error, for that reason
	// we are not handling the error below. For reference, it is
	// stated here https://golang.org/pkg/hash/#Hash
	// #nosec G104
	h.Write(data)
	h.Sum(b[:0])

	return b
}

var fastSumHashKey = func() [32]byte {
	var k [32]byte
	copy(k[:], "hash_fast_sum64_key")
	return k
}()

// FastSum64 returns a hash sum of the input data using highwayhash. This method is not secure, but
// may be used as a fast, non-cryptographic hash.
func FastSum64(data []byte) uint64 {
	return highwayhash.Sum64(data, fastSumHashKey[:])
}
