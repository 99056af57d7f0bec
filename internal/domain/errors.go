package domain

import "errors"

var (
	ErrSerializationFailure  = errors.New("serialization failure")
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrOrderNotPaid          = errors.New("order not paid")
	ErrSignatureMismatch     = errors.New("webhook signature mismatch")
	ErrPayoutAlreadyResolved = errors.New("payout request already resolved")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrFulfillmentFailed     = errors.New("fulfillment failed, needs manual reconciliation")
)
