package repositories

import (
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(order *models.PaymentOrder) error {
	if err := r.db.Create(order).Error; err != nil {
		// The partial unique index rejects a second pending order for
		// the account. Report it as a retryable conflict; the replayed
		// transaction cancels the now-committed order and supersedes it.
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.Wrap(err, errors.ErrCodeConflict, "concurrent pending order for account")
		}
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create payment order")
	}
	return nil
}

func (r *OrderRepository) GetByOrderID(orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	result := r.db.Where("order_id = ?", orderID).First(&order)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "payment order not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get payment order")
	}

	return &order, nil
}

func (r *OrderRepository) GetByGatewayOrderID(gatewayOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	result := r.db.Where("gateway_order_id = ?", gatewayOrderID).First(&order)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "payment order not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get payment order")
	}

	return &order, nil
}

func (r *OrderRepository) GetForUpdate(id uint) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "payment order not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to lock payment order")
	}

	return &order, nil
}

// TransitionFromPending is the idempotency guard of the state machine:
// the update only lands while the order is still pending, so replayed
// gateway signals affect zero rows and report false.
func (r *OrderRepository) TransitionFromPending(id uint, to string, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	result := r.db.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(updates)

	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to transition order")
	}

	return result.RowsAffected > 0, nil
}

func (r *OrderRepository) MarkRetried(id uint, from string) (bool, error) {
	result := r.db.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", models.OrderStatusRetried)

	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to mark order retried")
	}

	return result.RowsAffected > 0, nil
}

// CancelPendingForAccount enforces the at-most-one-pending-order rule:
// a new purchase intent supersedes whatever was pending before.
func (r *OrderRepository) CancelPendingForAccount(accountID uint) error {
	result := r.db.Model(&models.PaymentOrder{}).
		Where("account_id = ? AND status = ?", accountID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":        models.OrderStatusCancelled,
			"status_detail": "superseded by a newer order",
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to cancel pending orders")
	}
	return nil
}

// ExpireStalePending sweeps pending orders past their expiry horizon.
// Each row transition is individually idempotent, so a partially failed
// sweep is safe to retry on the next tick.
func (r *OrderRepository) ExpireStalePending(now time.Time) (int64, error) {
	result := r.db.Model(&models.PaymentOrder{}).
		Where("status = ? AND expires_at < ?", models.OrderStatusPending, now).
		Updates(map[string]interface{}{
			"status":        models.OrderStatusExpired,
			"status_detail": "expired by sweeper",
		})

	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to expire stale orders")
	}

	return result.RowsAffected, nil
}

// FailStaleErrors demotes long-lived error orders to the terminal failed
// state once they are older than the cutoff.
func (r *OrderRepository) FailStaleErrors(cutoff time.Time) (int64, error) {
	result := r.db.Model(&models.PaymentOrder{}).
		Where("status = ? AND created_at < ?", models.OrderStatusError, cutoff).
		Updates(map[string]interface{}{
			"status":        models.OrderStatusFailed,
			"status_detail": "failed by sweeper after prolonged error state",
		})

	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to demote error orders")
	}

	return result.RowsAffected, nil
}
