package enum

// ── Group A: Order lifecycle (mirrors the system of record) ──

const (
	OrderStatusDraft             = "draft"
	OrderStatusPending           = "pending"
	OrderStatusConfirmed         = "confirmed"
	OrderStatusProcessing        = "processing"
	OrderStatusShipped           = "shipped"
	OrderStatusPartiallyShipped  = "partially_shipped"
	OrderStatusInvoiced          = "invoiced"
	OrderStatusPartiallyInvoiced = "partially_invoiced"
	OrderStatusDelivered         = "delivered"
	OrderStatusCancelled         = "cancelled"
	OrderStatusVoid              = "void"
)

// OrderStatuses lists every known lifecycle status.
var OrderStatuses = []string{
	OrderStatusDraft,
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusPartiallyShipped,
	OrderStatusInvoiced,
	OrderStatusPartiallyInvoiced,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusVoid,
}

const (
	FulfillmentUnshipped = "unshipped"
	FulfillmentPartial   = "partial"
	FulfillmentComplete  = "complete"
)

// ── Group B: Sync audit trail ──

const (
	SyncKindUpdate = "update"
	SyncKindCancel = "cancel"
	SyncKindResend = "resend"
)

const (
	SyncOutcomePending = "pending"
	SyncOutcomeSuccess = "success"
	SyncOutcomeFailed  = "failed"
)

const (
	SyncErrorTimeout    = "timeout"
	SyncErrorRejected   = "rejected"
	SyncErrorUnrecorded = "unrecorded" // never sent: the audit trail refused the operation
)

// Webhook update_type values.
const (
	UpdateTypeUpdate = "update"
	UpdateTypeCancel = "cancel"
)

// ── Group C: Invoices ──

const (
	InvoiceStatusDraft   = "draft"
	InvoiceStatusSent    = "sent"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusOverdue = "overdue"
)

// ── Group D: Roles (issued by the external auth service) ──

const (
	RoleAdmin     = "ADMIN"
	RoleSales     = "SALES"
	RoleWarehouse = "WAREHOUSE"
	RoleViewer    = "VIEWER"
)
