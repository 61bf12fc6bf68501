package invoice

import (
	"math"
	"time"

	"github.com/edulane/billing/internal/types"
)

const day = 24 * time.Hour

// IsOverdue reports whether a sent, unpaid invoice is past its due date
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.InvoiceStatus == types.InvoiceStatusSent &&
		i.PaidAt == nil &&
		i.DueDate != nil &&
		i.DueDate.Before(now)
}

// DaysOverdue returns the number of started days since the due date, zero
// when the invoice is not overdue
func (i *Invoice) DaysOverdue(now time.Time) int {
	if !i.IsOverdue(now) {
		return 0
	}
	return int(math.Ceil(float64(now.Sub(*i.DueDate)) / float64(day)))
}

// AgingBucket classifies the invoice by days overdue
func (i *Invoice) AgingBucket(now time.Time) types.InvoiceAgingBucket {
	days := i.DaysOverdue(now)
	switch {
	case days == 0:
		return types.InvoiceAgingCurrent
	case days <= 30:
		return types.InvoiceAging1To30
	case days <= 60:
		return types.InvoiceAging31To60
	case days <= 90:
		return types.InvoiceAging61To90
	default:
		return types.InvoiceAgingOver90
	}
}
