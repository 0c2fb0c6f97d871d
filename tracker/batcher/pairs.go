package batcher

import (
	"github.com/derad-network/derad/config/params"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// PairRegistry remembers which package uuid a batch id was minted with.
// Entries expire after the configured TTL. A lookup that misses mints a
// fresh uuid so the encrypted pipeline never stalls on a lost pairing,
// at the cost of the coupling guarantee for that batch.
type PairRegistry struct {
	c *gocache.Cache
}

// NewPairRegistry returns a registry with the configured retention.
func NewPairRegistry() *PairRegistry {
	ttl := params.DeradConfig().BatchPairTTL
	return &PairRegistry{c: gocache.New(ttl, 2*ttl)}
}

// Record stores the pairing for a batch id.
func (r *PairRegistry) Record(batchID, packageUUID string) {
	r.c.Set(batchID, packageUUID, gocache.DefaultExpiration)
}

// Resolve returns the recorded package uuid for a batch id. When the
// pairing has expired it mints and re-records a fresh uuid, so retries of
// the same batch stay consistent with each other.
func (r *PairRegistry) Resolve(batchID string) string {
	if v, ok := r.c.Get(batchID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	pairFallbacks.Inc()
	fresh := uuid.NewString()
	log.WithFields(logrus.Fields{
		"batchId":     batchID,
		"packageUuid": fresh,
	}).Warn("Batch pairing expired, minted fresh package uuid")
	r.c.Set(batchID, fresh, gocache.DefaultExpiration)
	return fresh
}
