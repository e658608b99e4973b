package accounts

import "time"

// Kind enumerates the money holders an obligation can be settled against.
type Kind string

const (
	KindCash Kind = "CASH"
	KindBank Kind = "BANK"
)

// Account models a cash or bank account that receives or pays money.
type Account struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
