package notify

// Routing keys for user-visible side effects. All of them fire after the
// owning financial transaction has committed.
const (
	EventOrderPaid         = "order.paid"
	EventTicketsIssued     = "order.tickets_issued"
	EventFulfillmentFailed = "order.fulfillment_failed"
	EventOrderReminder     = "order.reminder"
	EventPayoutRequested   = "payout.requested"
	EventPayoutApproved    = "payout.approved"
	EventPayoutRejected    = "payout.rejected"
)
