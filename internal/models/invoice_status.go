package models

// InvoiceStatus is the lifecycle state of a BillingInvoice.
// UNPAID is the only non-terminal state.
type InvoiceStatus string

const (
	InvoiceUnpaid   InvoiceStatus = "UNPAID"
	InvoicePaid     InvoiceStatus = "PAID"
	InvoiceExpired  InvoiceStatus = "EXPIRED"
	InvoiceCanceled InvoiceStatus = "CANCELED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceUnpaid, InvoicePaid, InvoiceExpired, InvoiceCanceled:
		return true
	}
	return false
}

func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceExpired || s == InvoiceCanceled
}

// Lifecycle moves: the only moves available to owners and background jobs.
var invoiceLifecycle = map[InvoiceStatus][]InvoiceStatus{
	InvoiceUnpaid: {InvoicePaid, InvoiceExpired, InvoiceCanceled},
}

// Administrative corrections between terminal states. Nothing returns to UNPAID.
var invoiceCorrections = map[InvoiceStatus][]InvoiceStatus{
	InvoicePaid:     {InvoiceExpired, InvoiceCanceled},
	InvoiceExpired:  {InvoicePaid, InvoiceCanceled},
	InvoiceCanceled: {InvoicePaid, InvoiceExpired},
}

// CanTransition reports whether an invoice may move from one status to another.
// Corrections between terminal states are only allowed when admin is true.
func CanTransition(from, to InvoiceStatus, admin bool) bool {
	if contains(invoiceLifecycle[from], to) {
		return true
	}
	return admin && contains(invoiceCorrections[from], to)
}

func contains(list []InvoiceStatus, s InvoiceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
