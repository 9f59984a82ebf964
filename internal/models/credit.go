package models

import "time"

type CreditBalance struct {
	ClientID  uint      `json:"clientId" gorm:"primaryKey;autoIncrement:false"`
	Remaining int       `json:"remaining" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (CreditBalance) TableName() string {
	return "credit_balances"
}
