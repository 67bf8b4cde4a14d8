package service

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	generalDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
)

// StockObserver is told which products changed stock once the change is committed.
type StockObserver interface {
	StockChanged(ctx context.Context, productIDs ...int64)
}

type noopStockObserver struct{}

func (noopStockObserver) StockChanged(context.Context, ...int64) {}

// inventory moves stock for order items under row locks.
type inventory struct {
	products   repository.ProductRepository
	outboxRepo worker.OutboxRepository
}

type stockLine struct {
	ProductID int64
	Quantity  int32
}

// demand sums quantities per product and returns product ids in ascending order.
func demand(lines []stockLine) (map[int64]int32, []int64) {
	totals := make(map[int64]int32, len(lines))
	ids := make([]int64, 0, len(lines))

	for _, line := range lines {
		if _, seen := totals[line.ProductID]; !seen {
			ids = append(ids, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}

	slices.Sort(ids)

	return totals, ids
}

// reserve locks every product, checks availability, then decrements. Nothing is written unless all lines fit.
func (inv *inventory) reserve(ctx context.Context, tx pgx.Tx, lines []stockLine) (map[int64]*domain.Product, error) {
	totals, ids := demand(lines)

	products, err := inv.products.LockForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return nil, &domain.UnavailableError{ProductID: id}
		}

		if err := product.Purchasable(totals[id]); err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		if err := inv.products.DecreaseStock(ctx, tx, id, totals[id]); err != nil {
			return nil, err
		}
	}

	return products, nil
}

func (inv *inventory) release(ctx context.Context, tx pgx.Tx, lines []stockLine) error {
	totals, ids := demand(lines)

	if _, err := inv.products.LockForUpdate(ctx, tx, ids); err != nil {
		return err
	}

	for _, id := range ids {
		if err := inv.products.IncreaseStock(ctx, tx, id, totals[id]); err != nil {
			return err
		}
	}

	return nil
}

// record emits one InventoryChanged event; sign is -1 for reservations and +1 for releases.
func (inv *inventory) record(ctx context.Context, tx pgx.Tx, reason string, orderID int64, lines []stockLine, sign int32) error {
	totals, ids := demand(lines)

	changes := make([]generalDomain.StockChange, 0, len(ids))
	for _, id := range ids {
		changes = append(changes, generalDomain.StockChange{ProductID: id, Delta: sign * totals[id]})
	}

	return emitEvent(
		ctx,
		tx,
		inv.outboxRepo,
		aggregateOrder,
		orderID,
		generalDomain.EventInventoryChanged,
		generalDomain.TopicInventoryEvents,
		generalDomain.InventoryChangedEvent{Reason: reason, OrderID: orderID, Changes: changes},
	)
}

func linesOf(items []domain.OrderItem) []stockLine {
	lines := make([]stockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, stockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	return lines
}

func productIDs(lines []stockLine) []int64 {
	_, ids := demand(lines)
	return ids
}
