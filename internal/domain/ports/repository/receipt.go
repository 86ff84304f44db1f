package repository

import (
	"context"
	"time"

	"xtrace-checkout/internal/domain/model"
)

// -----------------------------
// Receipts
// -----------------------------

// ReceiptRepository journals finished submissions for support follow-up.
type ReceiptRepository interface {
	Save(ctx context.Context, tx Tx, r *model.Receipt) error
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Receipt, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Receipt, error)
	// ListNeedingFollowUp returns receipts whose outcome needs a human: unconfirmed
	// verifications, payments collected from a user found blocked at verification,
	// and settled payments whose effect failed.
	ListNeedingFollowUp(ctx context.Context, tx Tx, since time.Time, limit int) ([]*model.Receipt, error)
}
