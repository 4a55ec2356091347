package gateway

import (
	"encoding/json"

	"github.com/playarena/credit_engine/pkg/errors"
)

// Webhook event types the gateway is known to send. Anything outside
// this closed set is rejected instead of being guessed at.
const (
	EventTypePayment = "payment"
	EventTypeOrder   = "order"
)

// Event is the parsed form of one webhook delivery. Deliveries are
// at-least-once and possibly out of order; the payload only identifies
// the order, the reconciler re-reads authoritative state afterwards.
type Event struct {
	Type           string
	GatewayOrderID string
	PaymentID      string
	Status         string
	Detail         string
}

type rawEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
		Detail    string `json:"status_detail"`
	} `json:"data"`
	// legacy flat shape
	OrderID string `json:"external_order_id"`
	Status  string `json:"status"`
}

// ParseEvent maps a raw webhook payload into a typed Event. Unknown
// shapes return VALIDATION_FAILED so the handler can log and drop them.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "malformed webhook payload")
	}

	switch raw.Type {
	case EventTypePayment, EventTypeOrder:
		if raw.Data.OrderID == "" {
			return nil, errors.New(errors.ErrCodeValidationFailed, "webhook payload missing order id")
		}
		return &Event{
			Type:           raw.Type,
			GatewayOrderID: raw.Data.OrderID,
			PaymentID:      raw.Data.PaymentID,
			Status:         raw.Data.Status,
			Detail:         raw.Data.Detail,
		}, nil
	case "":
		// Legacy notifications carry no type and a flat order reference.
		if raw.OrderID == "" {
			return nil, errors.New(errors.ErrCodeValidationFailed, "unrecognized webhook payload shape")
		}
		return &Event{
			Type:           EventTypeOrder,
			GatewayOrderID: raw.OrderID,
			Status:         raw.Status,
		}, nil
	default:
		return nil, errors.New(errors.ErrCodeValidationFailed, "unknown webhook event type: "+raw.Type)
	}
}
