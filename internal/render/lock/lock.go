// Package lock implements the fail-fast dedup lock shared by every worker.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/redis"
)

// DefaultOperationTimeout bounds a single store round trip
const DefaultOperationTimeout = 2 * time.Second

var (
	ErrStoreUnavailable = errors.New("lock store unavailable")
	ErrInvalidTTL       = errors.New("lock ttl must be positive")
)

// Store is the subset of the Redis client the coordinator needs
type Store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// Coordinator grants at most one owner per key until release or TTL expiry
type Coordinator struct {
	store     Store
	opTimeout time.Duration
	logger    *zap.Logger
}

func NewCoordinator(store Store, opTimeout time.Duration, logger *zap.Logger) *Coordinator {
	if opTimeout <= 0 {
		opTimeout = DefaultOperationTimeout
	}
	return &Coordinator{
		store:     store,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// Key maps a request fingerprint to its lock key
func Key(fingerprint string) string {
	return redis.LockKey(fingerprint)
}

// Acquire atomically creates key with owner and ttl if absent.
// Returns false without error when another owner holds the key.
func (c *Coordinator) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	// Independent context: a cancelled request must not abandon a half-finished SET
	opCtx, cancel := c.operationContext(ctx)
	defer cancel()

	acquired, err := c.store.SetNX(opCtx, key, owner, ttl)
	if err != nil {
		return false, fmt.Errorf("%w: acquire %s: %v", ErrStoreUnavailable, key, err)
	}

	c.logger.Debug("Lock acquire",
		zap.String("key", key),
		zap.String("owner", owner),
		zap.Bool("acquired", acquired),
		zap.Duration("ttl", ttl))

	return acquired, nil
}

// Release deletes key only while owner still holds it. Missing keys are a no-op.
func (c *Coordinator) Release(ctx context.Context, key, owner string) error {
	opCtx, cancel := c.operationContext(ctx)
	defer cancel()

	deleted, err := c.store.CompareAndDelete(opCtx, key, owner)
	if err != nil {
		return fmt.Errorf("%w: release %s: %v", ErrStoreUnavailable, key, err)
	}

	if !deleted {
		c.logger.Debug("Lock already gone or held by another owner on release",
			zap.String("key", key),
			zap.String("owner", owner))
	}

	return nil
}

func (c *Coordinator) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
}
