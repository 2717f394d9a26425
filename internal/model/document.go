package model

import "time"

// DocumentKind tags a billing document as an invoice or an expense. The kind
// is also the first segment of the artifact storage path, so the string
// values are part of the stable storage contract.
type DocumentKind string

const (
	KindInvoice DocumentKind = "Invoices"
	KindExpense DocumentKind = "Expense"
)

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusOverdue DocumentStatus = "overdue"
	StatusPaid    DocumentStatus = "paid"
)

// PaymentTermsMode selects between paying the full amount at once and an
// advance payment with a later balance.
type PaymentTermsMode string

const (
	PaymentFull           PaymentTermsMode = "full"
	PaymentAdvanceBalance PaymentTermsMode = "advance_balance"
)

// Document is an invoice or expense header. Artifact fields hold filenames
// only; the bytes live in the artifact store under the derived path.
type Document struct {
	ID        int64
	Kind      DocumentKind
	OwnerID   int64
	ProjectID *int64
	ClientID  *int64

	Number   string
	Subtotal float64
	// TaxRate is a percentage, not a precomputed amount.
	TaxRate  float64
	Total    float64
	Currency string

	PaymentTerms   PaymentTermsMode
	AdvanceAmount  *float64
	BalanceDue     *float64
	BalanceDueDate *time.Time

	IssueDate time.Time
	DueDate   time.Time
	Status    DocumentStatus

	// ArtifactFile is the filename of the generated PDF, empty when no PDF
	// has been produced yet. Attachments are uploaded supporting files.
	ArtifactFile string
	Attachments  []string

	Reminders ReminderSchedule

	Items []LineItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem is one billed position. Line items are owned by their document
// and are created and destroyed with it.
type LineItem struct {
	ID         int64
	DocumentID int64
	CategoryID int64
	Quantity   float64
	UnitPrice  float64
	Position   int
}

// DeriveStatus computes the date-driven status. Paid is sticky: once a
// document is paid it never auto-reverts when its due date moves.
// A due date before today means overdue; today or later means pending.
func DeriveStatus(current DocumentStatus, dueDate, now time.Time) DocumentStatus {
	if current == StatusPaid {
		return StatusPaid
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	due := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, now.Location())
	if due.Before(today) {
		return StatusOverdue
	}
	return StatusPending
}

// ValidTransition reports whether moving from one explicit status to another
// is legal. Date-driven pending/overdue flips are always allowed; paid may
// only be entered or left explicitly.
func ValidTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusPending, StatusOverdue:
		return to == StatusPending || to == StatusOverdue || to == StatusPaid
	case StatusPaid:
		return to == StatusPaid || to == StatusPending || to == StatusOverdue
	default:
		return false
	}
}

// ComputeTotals fills Subtotal and Total from the line items and tax rate.
func (d *Document) ComputeTotals() {
	var subtotal float64
	for _, it := range d.Items {
		subtotal += it.Quantity * it.UnitPrice
	}
	d.Subtotal = subtotal
	d.Total = subtotal + subtotal*d.TaxRate/100
}
