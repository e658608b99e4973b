package obligations

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/arap/internal/money"
)

// Direction tells which way the money flows.
type Direction string

const (
	DirectionReceivable Direction = "RECEIVABLE"
	DirectionPayable    Direction = "PAYABLE"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == DirectionReceivable || d == DirectionPayable
}

// Status enumerates obligation states. Only PENDING and SETTLED exist; an
// obligation can cycle between them indefinitely.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSettled Status = "SETTLED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusSettled
}

// Label returns the user-facing label used on receipts and payment screens.
func (s Status) Label(d Direction) string {
	if s == StatusPending {
		return "pendente"
	}
	if d == DirectionReceivable {
		return "recebido"
	}
	return "pago"
}

// ConfirmedBy records who or what settled an obligation.
type ConfirmedBy string

const (
	ConfirmedByNone           ConfirmedBy = ""
	ConfirmedByManual         ConfirmedBy = "MANUAL"
	ConfirmedByAutomatedMatch ConfirmedBy = "AUTOMATED_MATCH"
)

// Obligation is a receivable or payable record.
type Obligation struct {
	ID                  uuid.UUID   `json:"id"`
	Direction           Direction   `json:"direction"`
	OriginID            int64       `json:"origin_id"`
	GroupID             uuid.UUID   `json:"group_id"`
	InstallmentNumber   int         `json:"installment_number"`
	TotalInstallments   int         `json:"total_installments"`
	Description         string      `json:"description,omitempty"`
	OriginalAmount      money.Money `json:"original_amount"`
	Adjustment          money.Money `json:"adjustment"`
	DueDate             *time.Time  `json:"due_date,omitempty"`
	Status              Status      `json:"status"`
	SettlementAccountID *int64      `json:"settlement_account_id,omitempty"`
	SettlementDate      *time.Time  `json:"settlement_date,omitempty"`
	ConfirmedBy         ConfirmedBy `json:"confirmed_by,omitempty"`
	Notes               string      `json:"notes,omitempty"`
	Version             int64       `json:"version"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// FinalAmount is always OriginalAmount + Adjustment.
func (o Obligation) FinalAmount() money.Money {
	return o.OriginalAmount.Add(o.Adjustment)
}

// StatusLabel returns the localized label for the current status.
func (o Obligation) StatusLabel() string {
	return o.Status.Label(o.Direction)
}

// settlementConsistent checks that account, date and confirmer are either all
// set (SETTLED) or all unset (PENDING).
func (o Obligation) settlementConsistent() bool {
	set := o.SettlementAccountID != nil && o.SettlementDate != nil && o.ConfirmedBy != ConfirmedByNone
	unset := o.SettlementAccountID == nil && o.SettlementDate == nil && o.ConfirmedBy == ConfirmedByNone
	switch o.Status {
	case StatusSettled:
		return set
	case StatusPending:
		return unset
	default:
		return false
	}
}

// Patch lists every field a settlement transition may change. ExpectStatus and
// ExpectVersion guard the write: the store applies it only when the stored
// record still matches both.
type Patch struct {
	ExpectStatus  Status
	ExpectVersion int64

	Status              Status
	Adjustment          money.Money
	SettlementAccountID *int64
	SettlementDate      *time.Time
	ConfirmedBy         ConfirmedBy
}

// settlePatch builds the Pending -> Settled patch.
func settlePatch(current Obligation, accountID int64, adjustment money.Money, date time.Time, by ConfirmedBy) Patch {
	d := dateOnly(date)
	return Patch{
		ExpectStatus:        StatusPending,
		ExpectVersion:       current.Version,
		Status:              StatusSettled,
		Adjustment:          adjustment,
		SettlementAccountID: &accountID,
		SettlementDate:      &d,
		ConfirmedBy:         by,
	}
}

// reopenPatch builds the Settled -> Pending patch. Adjustment is carried over
// unchanged.
func reopenPatch(current Obligation) Patch {
	return Patch{
		ExpectStatus:  StatusSettled,
		ExpectVersion: current.Version,
		Status:        StatusPending,
		Adjustment:    current.Adjustment,
	}
}

// apply returns o with the patch fields written and the version bumped.
func (p Patch) apply(o Obligation, now time.Time) Obligation {
	o.Status = p.Status
	o.Adjustment = p.Adjustment
	o.SettlementAccountID = p.SettlementAccountID
	o.SettlementDate = p.SettlementDate
	o.ConfirmedBy = p.ConfirmedBy
	o.Version++
	o.UpdatedAt = now
	return o
}

// Filter narrows Query results. Zero values are ignored.
type Filter struct {
	Direction     Direction
	OriginID      int64
	GroupID       uuid.UUID
	Status        Status
	DueFrom       *time.Time
	DueTo         *time.Time
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	Limit         int
	Offset        int
}

// Matches reports whether o satisfies the filter.
func (f Filter) Matches(o Obligation) bool {
	if f.Direction != "" && o.Direction != f.Direction {
		return false
	}
	if f.OriginID != 0 && o.OriginID != f.OriginID {
		return false
	}
	if f.GroupID != uuid.Nil && o.GroupID != f.GroupID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.DueFrom != nil && (o.DueDate == nil || o.DueDate.Before(*f.DueFrom)) {
		return false
	}
	if f.DueTo != nil && (o.DueDate == nil || !o.DueDate.Before(*f.DueTo)) {
		return false
	}
	if f.CreatedBefore != nil && !o.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.CreatedAfter != nil && o.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
