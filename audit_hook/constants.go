package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionLedgerInitialized = "ledger.initialized"

	// Plan actions
	ActionPlanCreated       = "plan.created"
	ActionPlanStatusChanged = "plan.status_changed"

	// Subscription actions
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionRenewed  = "subscription.renewed"
	ActionSubscriptionCanceled = "subscription.canceled"

	// Payment actions
	ActionPaymentCharged = "payment.charged"

	// Rejected operations
	ActionOperationRejected = "operation.rejected"
)

// Resource constants for audit events.
const (
	ResourceLedger       = "ledger"
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
	ResourceOperation    = "operation"
)

// Category constants for audit events.
const (
	CategoryAdmin        = "admin"
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryAccess       = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
