// Package installments splits a payable total into dated installments whose
// amounts always add back up to the requested total.
package installments

import (
	"time"

	"github.com/odyssey-erp/arap/internal/money"
)

// Installment is one computed slice of a total.
type Installment struct {
	Number  int         `json:"number"`
	Total   int         `json:"total"`
	Amount  money.Money `json:"amount"`
	DueDate time.Time   `json:"due_date"`
}

// Split divides total into count installments. Every installment receives
// floor(total/count) and the last one absorbs the remainder. Due dates advance
// daysBetween calendar days from firstDue; zero or negative spacing is passed
// through unchanged. A non-positive count or total yields nil.
func Split(total money.Money, count int, firstDue time.Time, daysBetween int) []Installment {
	if count < 1 || total <= 0 {
		return nil
	}
	cents := total.Cents()
	base := cents / int64(count)
	out := make([]Installment, count)
	for i := 0; i < count; i++ {
		amount := base
		if i == count-1 {
			amount = cents - base*int64(count-1)
		}
		out[i] = Installment{
			Number:  i + 1,
			Total:   count,
			Amount:  money.FromCents(amount),
			DueDate: firstDue.AddDate(0, 0, i*daysBetween),
		}
	}
	return out
}

// Sum adds the amounts of a split.
func Sum(items []Installment) money.Money {
	var total money.Money
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}
