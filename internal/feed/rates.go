package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultRatesTTL = time.Minute

// RatesCache serves shipping rates from the document store. Tiers with no
// document get pricing.DefaultRates. When the store cannot be read the last
// fetched rates are served, or pricing.FallbackRates if there are none yet;
// neither resets the TTL.
type RatesCache struct {
	repo repository.ShippingRepository
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time

	mu        sync.RWMutex
	rates     domain.ShippingRates
	fetchedAt time.Time
	sfg       singleflight.Group
}

func NewRatesCache(repo repository.ShippingRepository, ttl time.Duration, log *zap.Logger) *RatesCache {
	if ttl <= 0 {
		ttl = DefaultRatesTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RatesCache{repo: repo, ttl: ttl, log: log, now: time.Now}
}

func (c *RatesCache) Rates(ctx context.Context) domain.ShippingRates {
	c.mu.RLock()
	rates, fetched := c.rates, !c.fetchedAt.IsZero()
	fresh := fetched && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return rates
	}

	v, err, _ := c.sfg.Do("rates", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		if !fetched {
			c.log.Warn("shipping rates unavailable, using fallback", zap.Error(err))
			return pricing.FallbackRates
		}
		c.log.Warn("shipping rates unavailable, serving stale rates", zap.Error(err))
		return rates
	}
	return v.(domain.ShippingRates)
}

// Watch streams the shipping rates, keeping the cache warm while the
// subscription is active.
func (c *RatesCache) Watch(ctx context.Context, interval time.Duration) *Subscription[domain.ShippingRates] {
	return Watch(ctx, interval, c.refresh, func(a, b domain.ShippingRates) bool { return a == b }, c.log)
}

func (c *RatesCache) refresh(ctx context.Context) (domain.ShippingRates, error) {
	rates := pricing.DefaultRates
	for _, tier := range []domain.ShippingTier{domain.ShippingStandard, domain.ShippingExpress} {
		price, err := c.repo.GetShippingRate(ctx, tier)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.ShippingRates{}, fmt.Errorf("failed to read %s rate: %w", tier, err)
		}
		if tier == domain.ShippingExpress {
			rates.Express = price
		} else {
			rates.Standard = price
		}
	}

	c.mu.Lock()
	c.rates = rates
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return rates, nil
}
