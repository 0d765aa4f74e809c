// Package model defines domain entities for the application.
package model

import "time"

// Account is a caller identity holding a prepaid token balance.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	Balance      int64     `json:"tokens"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanAfford reports whether the balance covers cost.
func (a *Account) CanAfford(cost int64) bool {
	return a.Balance >= cost
}
