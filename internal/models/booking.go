package models

import "time"

// Booking is created exactly once per confirmed booking request.
type Booking struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	RequestID     uint      `json:"requestId" gorm:"not null;uniqueIndex"`
	ClientID      uint      `json:"clientId" gorm:"not null;index"`
	BusinessID    uint      `json:"businessId" gorm:"not null;index"`
	ServiceID     *uint     `json:"serviceId,omitempty"`
	RequestedTime time.Time `json:"requestedTime" gorm:"not null"`
	TotalPrice    int64     `json:"totalPrice" gorm:"not null"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TableName specifies the table name
func (Booking) TableName() string {
	return "bookings"
}
