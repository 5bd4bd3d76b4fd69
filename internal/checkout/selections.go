package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
)

// selection is what a shopper has picked on the checkout screen.
type selection struct {
	discount *domain.DiscountCode
	tier     domain.ShippingTier
	touched  time.Time
}

func (o *Orchestrator) selectionFor(userID string) selection {
	o.mu.Lock()
	defer o.mu.Unlock()
	sel, ok := o.selections[userID]
	if !ok {
		return selection{tier: domain.ShippingStandard}
	}
	return sel
}

// ApplyDiscount validates code and makes it the user's only applied code.
// The returned quote reflects it.
func (o *Orchestrator) ApplyDiscount(ctx context.Context, userID, code string) (pricing.Breakdown, error) {
	d, err := o.lookupDiscount(ctx, code)
	if err != nil {
		return pricing.Breakdown{}, err
	}

	o.mu.Lock()
	sel, ok := o.selections[userID]
	if !ok {
		sel.tier = domain.ShippingStandard
	}
	sel.discount = d
	sel.touched = o.now()
	o.selections[userID] = sel
	o.mu.Unlock()

	return o.Quote(ctx, userID)
}

func (o *Orchestrator) ClearDiscount(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sel, ok := o.selections[userID]
	if !ok {
		return
	}
	sel.discount = nil
	sel.touched = o.now()
	o.selections[userID] = sel
}

func (o *Orchestrator) dropSelection(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.selections, userID)
}

// pruneSelections forgets choices nobody has touched within the selection
// TTL. Users with a checkout in flight keep theirs.
func (o *Orchestrator) pruneSelections() int {
	cutoff := o.now().Add(-o.cfg.SelectionTTL)

	o.mu.Lock()
	defer o.mu.Unlock()
	pruned := 0
	for userID, sel := range o.selections {
		if _, busy := o.inFlight[userID]; busy || !sel.touched.Before(cutoff) {
			continue
		}
		delete(o.selections, userID)
		pruned++
	}
	return pruned
}

func (o *Orchestrator) SelectShipping(ctx context.Context, userID string, tier domain.ShippingTier) (pricing.Breakdown, error) {
	if !tier.Valid() {
		return pricing.Breakdown{}, &ValidationError{Field: "shipping_tier", Reason: fmt.Sprintf("unknown tier %q", tier)}
	}

	o.mu.Lock()
	sel := o.selections[userID]
	sel.tier = tier
	sel.touched = o.now()
	o.selections[userID] = sel
	o.mu.Unlock()

	return o.Quote(ctx, userID)
}

// Quote prices the user's live cart with their current selections.
func (o *Orchestrator) Quote(ctx context.Context, userID string) (pricing.Breakdown, error) {
	m, err := o.carts.Get(ctx, userID)
	if err != nil {
		return pricing.Breakdown{}, fmt.Errorf("failed to load cart: %w", err)
	}
	sel := o.selectionFor(userID)
	return pricing.Quote(m.Cart(), sel.discount, sel.tier, o.rates.Rates(ctx)), nil
}

func (o *Orchestrator) lookupDiscount(ctx context.Context, code string) (*domain.DiscountCode, error) {
	normalized := pricing.NormalizeCode(code)
	if normalized == "" {
		return nil, toValidation(pricing.ValidateDiscount(code, nil))
	}

	d, err := o.store.FindDiscountByCode(ctx, normalized)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up discount code: %w", err)
	}
	if verr := pricing.ValidateDiscount(normalized, d); verr != nil {
		return nil, toValidation(verr)
	}
	return d, nil
}

func toValidation(err error) error {
	var perr *pricing.ValidationError
	if errors.As(err, &perr) {
		return &ValidationError{Field: perr.Field, Reason: perr.Reason}
	}
	return err
}
