package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

var ErrOrderNotFailed = errors.New("only failed orders can be moved back to the cart")

// RestoreFailedOrder puts the items of a failed order back into the user's
// cart at their ordered quantities, using current catalog data. Products that
// no longer exist are skipped. It returns how many lines were restored.
func (o *Orchestrator) RestoreFailedOrder(ctx context.Context, userID, orderNumber string) (int, error) {
	if o.InProgress(userID) {
		return 0, ErrCheckoutInProgress
	}
	order, err := o.store.GetOrder(ctx, userID, orderNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to load order: %w", err)
	}
	if order.Status != domain.OrderStatusFailed {
		return 0, ErrOrderNotFailed
	}

	m, err := o.carts.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load cart: %w", err)
	}

	restored := 0
	for _, item := range order.Items {
		p, err := o.store.GetProduct(ctx, item.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("failed to load product %s: %w", item.ProductID, err)
		}
		m.MoveToCart(*p, item.Quantity)
		restored++
	}
	return restored, nil
}
