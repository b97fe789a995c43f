package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vendora/internal/domain/entity"
	"vendora/pkg/logger"
)

// Limiter tracks per-vendor daily payment volume in redis. INCRBY is atomic,
// so two concurrent purchases for the same vendor cannot both pass a cap
// check that only one should pass, even across replicas.
type Limiter struct {
	client  *redis.Client
	baseCap int64
}

func NewLimiter(client *redis.Client, baseCap int64) *Limiter {
	return &Limiter{
		client:  client,
		baseCap: baseCap,
	}
}

func dayKey(vendorID string, now time.Time) string {
	return fmt.Sprintf("velocity:%s:%s", vendorID, now.Format("2006-01-02"))
}

// Reserve adds amount to the vendor's volume for today and reports whether
// the tier-scaled cap still holds. On a cap hit the reservation is rolled
// back so a later smaller purchase can still fit.
func (l *Limiter) Reserve(ctx context.Context, vendorID string, tier entity.VendorTier, amount int64) (bool, error) {
	key := dayKey(vendorID, time.Now())

	total, err := l.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return false, fmt.Errorf("velocity reserve: %w", err)
	}

	if total == amount {
		// First write today; expire well past midnight so the key
		// cannot outlive its day by more than the grace window.
		if err := l.client.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			logger.Warn("Failed to set velocity key expiry for vendor %s: %v", vendorID, err)
		}
	}

	limit := int64(float64(l.baseCap) * tier.CapMultiplier())
	if total > limit {
		if err := l.client.DecrBy(ctx, key, amount).Err(); err != nil {
			logger.Error("Failed to roll back velocity reservation for vendor %s: %v", vendorID, err)
		}
		return false, nil
	}

	return true, nil
}

// Release returns reserved volume when a payment expires or is refunded.
func (l *Limiter) Release(ctx context.Context, vendorID string, amount int64) {
	key := dayKey(vendorID, time.Now())
	if err := l.client.DecrBy(ctx, key, amount).Err(); err != nil {
		logger.Warn("Failed to release velocity reservation for vendor %s: %v", vendorID, err)
	}
}
