package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

// Start runs the loop that resolves attempts whose payment page never
// answered. Stop it with Close.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go o.sweepLoop()
}

func (o *Orchestrator) Close() {
	o.sweepOnce.Do(func() { close(o.stopSweep) })
	o.wg.Wait()
}

func (o *Orchestrator) sweepLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.Sweep(context.Background())
		case <-o.stopSweep:
			return
		}
	}
}

// Sweep records every attempt older than the TTL as an abandoned payment and
// returns how many it resolved. Stale checkout selections are dropped on the
// same pass.
func (o *Orchestrator) Sweep(ctx context.Context) int {
	cutoff := o.now().Add(-o.cfg.AttemptTTL)

	o.mu.Lock()
	var expired []*Attempt
	for _, a := range o.attempts {
		if a.CreatedAt.Before(cutoff) {
			expired = append(expired, a)
		}
	}
	o.mu.Unlock()

	resolved := 0
	for _, a := range expired {
		_, err := o.Complete(ctx, a.UserID, a.OrderNumber, PaymentResult{
			Error: &domain.PaymentFailure{Code: FailureAbandoned, Description: "Payment was not completed."},
		})
		if errors.Is(err, ErrAttemptNotFound) {
			// answered between the scan and the claim
			continue
		}
		resolved++
		o.log.Info("abandoned checkout resolved",
			zap.String("user_id", a.UserID),
			zap.String("order_number", a.OrderNumber))
	}
	if n := o.pruneSelections(); n > 0 {
		o.log.Debug("stale checkout selections dropped", zap.Int("count", n))
	}
	return resolved
}
