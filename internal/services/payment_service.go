package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playarena/credit_engine/internal/gateway"
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/internal/security"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
	"github.com/playarena/credit_engine/pkg/logger"
)

// PaymentService owns the payment order state machine. The gateway's
// reports are advisory; every transition is guarded against the
// authoritative internal status, so replayed webhooks and racing sweeps
// are no-ops instead of double credits.
type PaymentService struct {
	store      storage.Datastore
	gw         gateway.Client
	expiry     time.Duration
	txAttempts int
}

func NewPaymentService(store storage.Datastore, gw gateway.Client, expiry time.Duration, txAttempts int) *PaymentService {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &PaymentService{
		store:      store,
		gw:         gw,
		expiry:     expiry,
		txAttempts: txAttempts,
	}
}

// CreateOrder registers a new purchase intent and returns the order
// carrying the gateway redirect URL. Any prior pending order of the
// account is cancelled first: at most one concurrent intent per account.
func (s *PaymentService) CreateOrder(ctx context.Context, accountID string, packID uint, method string) (*models.PaymentOrder, error) {
	account, err := s.store.Accounts().GetByAccountID(accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("account %s is %s", account.AccountID, account.Status))
	}

	pack, err := s.store.Packs().GetByID(packID)
	if err != nil {
		return nil, err
	}
	if !pack.Active {
		return nil, errors.New(errors.ErrCodeUnavailable, "credit pack is deactivated")
	}

	orderID := uuid.NewString()
	created, err := s.gw.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:        pack.Price,
		Description:   fmt.Sprintf("%s (%d credits)", pack.Name, pack.Credits),
		CorrelationID: orderID,
		Method:        method,
	})
	if err != nil {
		return nil, err
	}

	order := &models.PaymentOrder{
		OrderID:        orderID,
		AccountID:      account.ID,
		PackID:         pack.ID,
		Amount:         pack.Price,
		CreditsGranted: pack.Credits,
		Status:         models.OrderStatusPending,
		PaymentMethod:  method,
		GatewayOrderID: created.GatewayOrderID,
		RedirectURL:    created.RedirectURL,
		ExpiresAt:      time.Now().UTC().Add(s.expiry),
	}

	err = atomicallyWithRetry(ctx, s.store, s.txAttempts, func(tx storage.Datastore) error {
		// Lock the account row first. Without it two concurrent creates
		// would each cancel zero committed rows and both insert a
		// pending order; under the lock the second create sees and
		// supersedes the first.
		if _, err := tx.Accounts().GetForUpdate(account.ID); err != nil {
			return err
		}
		if err := tx.Orders().CancelPendingForAccount(account.ID); err != nil {
			return err
		}
		return tx.Orders().Create(order)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Payment order created",
		"order_id", order.OrderID, "account", account.AccountID, "amount", order.Amount)
	return order, nil
}

// ConfirmOrder runs the confirmation unit exactly once per order:
// status flip, account credit, purchase ledger entry and purchase
// counter commit together. A replayed confirmation finds the order
// already out of pending and returns without touching the balance.
func (s *PaymentService) ConfirmOrder(ctx context.Context, orderID, gatewayPaymentID, detail string) error {
	return atomicallyWithRetry(ctx, s.store, s.txAttempts, func(tx storage.Datastore) error {
		loaded, err := tx.Orders().GetByOrderID(orderID)
		if err != nil {
			return err
		}
		order, err := tx.Orders().GetForUpdate(loaded.ID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			logger.Info("Duplicate confirmation ignored",
				"order_id", order.OrderID, "status", order.Status)
			return nil
		}

		ok, err := tx.Orders().TransitionFromPending(order.ID, models.OrderStatusConfirmed, map[string]interface{}{
			"gateway_payment_id": gatewayPaymentID,
			"status_detail":      security.SanitizeDetail(detail),
		})
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("Duplicate confirmation ignored", "order_id", order.OrderID)
			return nil
		}

		account, err := tx.Accounts().GetForUpdate(order.AccountID)
		if err != nil {
			return err
		}
		if err := tx.Accounts().AdjustCredits(account.ID, order.CreditsGranted); err != nil {
			return err
		}
		if err := tx.Ledger().Append(&models.LedgerEntry{
			EntryID:       uuid.NewString(),
			AccountID:     account.ID,
			OrderID:       &order.ID,
			Delta:         order.CreditsGranted,
			BalanceBefore: account.Credits,
			BalanceAfter:  account.Credits + order.CreditsGranted,
			Kind:          models.LedgerKindPurchaseCredit,
			Description:   "credit pack purchase",
		}); err != nil {
			return err
		}
		if err := tx.Accounts().IncrementPurchases(account.ID); err != nil {
			return err
		}

		logger.Info("Payment order confirmed",
			"order_id", order.OrderID, "credits", order.CreditsGranted)
		return nil
	})
}

// CancelOrder lets the owner withdraw a still-pending order.
func (s *PaymentService) CancelOrder(ctx context.Context, orderID, accountID string) error {
	return s.store.Atomically(ctx, func(tx storage.Datastore) error {
		order, err := tx.Orders().GetByOrderID(orderID)
		if err != nil {
			return err
		}

		account, err := tx.Accounts().GetByID(order.AccountID)
		if err != nil {
			return err
		}
		if account.AccountID != accountID {
			return errors.New(errors.ErrCodeForbidden, "order belongs to another account")
		}

		ok, err := tx.Orders().TransitionFromPending(order.ID, models.OrderStatusCancelled, map[string]interface{}{
			"status_detail": "cancelled by owner",
		})
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ErrCodeInvalidState, "order is no longer pending")
		}

		logger.Info("Payment order cancelled", "order_id", order.OrderID)
		return nil
	})
}

// RetryOrder spawns a fresh pending order for the same account and pack
// and marks the old one retried. No credits move here; the new order
// goes through the normal confirmation path.
func (s *PaymentService) RetryOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	stale, err := s.store.Orders().GetByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if !stale.CanRetry() {
		return nil, errors.New(errors.ErrCodeInvalidState,
			"order cannot be retried from status "+stale.Status)
	}

	pack, err := s.store.Packs().GetByID(stale.PackID)
	if err != nil {
		return nil, err
	}

	replacementID := uuid.NewString()
	created, err := s.gw.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:        pack.Price,
		Description:   fmt.Sprintf("%s (%d credits)", pack.Name, pack.Credits),
		CorrelationID: replacementID,
		Method:        stale.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	replacement := &models.PaymentOrder{
		OrderID:        replacementID,
		AccountID:      stale.AccountID,
		PackID:         pack.ID,
		Amount:         pack.Price,
		CreditsGranted: pack.Credits,
		Status:         models.OrderStatusPending,
		PaymentMethod:  stale.PaymentMethod,
		GatewayOrderID: created.GatewayOrderID,
		RedirectURL:    created.RedirectURL,
		ExpiresAt:      time.Now().UTC().Add(s.expiry),
	}

	err = atomicallyWithRetry(ctx, s.store, s.txAttempts, func(tx storage.Datastore) error {
		// Same account lock as CreateOrder: one pending order per
		// account, even against a racing create.
		if _, err := tx.Accounts().GetForUpdate(stale.AccountID); err != nil {
			return err
		}
		ok, err := tx.Orders().MarkRetried(stale.ID, stale.Status)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ErrCodeInvalidState, "order status changed during retry")
		}
		if err := tx.Orders().CancelPendingForAccount(stale.AccountID); err != nil {
			return err
		}
		return tx.Orders().Create(replacement)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Payment order retried",
		"order_id", stale.OrderID, "replacement", replacement.OrderID)
	return replacement, nil
}

// HandleGatewayEvent reconciles one webhook delivery. The payload is a
// hint only: the authoritative gateway status is fetched by id and then
// mapped onto the internal machine. Duplicate and stale deliveries are
// no-ops.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, event *gateway.Event) error {
	order, err := s.store.Orders().GetByGatewayOrderID(event.GatewayOrderID)
	if err != nil {
		return err
	}
	return s.reconcile(ctx, order)
}

// SyncOrder polls the gateway for one order and reconciles it.
func (s *PaymentService) SyncOrder(ctx context.Context, orderID string) error {
	order, err := s.store.Orders().GetByOrderID(orderID)
	if err != nil {
		return err
	}
	return s.reconcile(ctx, order)
}

func (s *PaymentService) reconcile(ctx context.Context, order *models.PaymentOrder) error {
	if order.Status != models.OrderStatusPending {
		logger.Info("Reconcile skipped, order not pending",
			"order_id", order.OrderID, "status", order.Status)
		return nil
	}

	status, err := s.gw.GetOrderStatus(ctx, order.GatewayOrderID)
	if err != nil {
		// Unknown is not failure: leave the order pending and let the
		// caller retry or the sweeper expire it.
		return err
	}

	internal, paymentID, detail := MapGatewayStatus(status)
	switch internal {
	case models.OrderStatusConfirmed:
		return s.ConfirmOrder(ctx, order.OrderID, paymentID, detail)
	case models.OrderStatusPending:
		return nil
	default:
		return s.store.Atomically(ctx, func(tx storage.Datastore) error {
			ok, err := tx.Orders().TransitionFromPending(order.ID, internal, map[string]interface{}{
				"gateway_payment_id": paymentID,
				"status_detail":      security.SanitizeDetail(detail),
			})
			if err != nil {
				return err
			}
			if !ok {
				logger.Info("Duplicate gateway signal ignored", "order_id", order.OrderID)
			}
			return nil
		})
	}
}

// MapGatewayStatus maps the gateway's reported order state onto the
// internal status vocabulary. Unknown combinations map to pending:
// success is never assumed.
func MapGatewayStatus(status *gateway.OrderStatus) (internal, paymentID, detail string) {
	if status == nil {
		return models.OrderStatusPending, "", ""
	}

	if status.Cancelled {
		return models.OrderStatusCancelled, "", "cancelled at gateway"
	}

	for _, p := range status.Payments {
		switch p.Status {
		case "approved", "accredited":
			return models.OrderStatusConfirmed, p.PaymentID, p.Detail
		case "rejected", "declined":
			return models.OrderStatusRejected, p.PaymentID, p.Detail
		case "error", "charged_back":
			return models.OrderStatusError, p.PaymentID, p.Detail
		}
	}

	switch status.Status {
	case "paid", "approved":
		return models.OrderStatusConfirmed, "", ""
	case "rejected", "declined":
		return models.OrderStatusRejected, "", ""
	case "expired":
		return models.OrderStatusExpired, "", ""
	case "error":
		return models.OrderStatusError, "", ""
	}

	return models.OrderStatusPending, "", ""
}
