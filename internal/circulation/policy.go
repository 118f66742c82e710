package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy holds the loan period and the fine charged per overdue day.
type Policy struct {
	LoanPeriodDays int
	DailyFine      decimal.Decimal
}

// DefaultPolicy lends for 14 days and charges 5 per overdue day.
func DefaultPolicy() Policy {
	return Policy{LoanPeriodDays: 14, DailyFine: decimal.NewFromInt(5)}
}

// DueDate is the issue time plus the loan period.
func (p Policy) DueDate(issued time.Time) time.Time {
	return issued.AddDate(0, 0, p.LoanPeriodDays)
}

// Assess returns the overdue days and fine for a book due at due and
// returned (or observed) at at.
func (p Policy) Assess(due, at time.Time) (int, decimal.Decimal) {
	days := DaysOverdue(due, at)
	return days, p.DailyFine.Mul(decimal.NewFromInt(int64(days)))
}

// DaysOverdue counts every started day past due. A book returned exactly at
// its due time is not overdue.
func DaysOverdue(due, at time.Time) int {
	late := at.Sub(due)
	if late <= 0 {
		return 0
	}
	return int((late + day - 1) / day)
}
