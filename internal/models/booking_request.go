package models

import "time"

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusConfirmed RequestStatus = "confirmed"
	RequestStatusExpired   RequestStatus = "expired"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// BookingRequest is a client's time-boxed call for offers. It is never deleted, only
// moved out of pending by a single conditional update.
type BookingRequest struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	ClientID      uint          `json:"clientId" gorm:"not null;index"`
	CategoryID    uint          `json:"categoryId" gorm:"not null"`
	OfferedPrice  int64         `json:"offeredPrice" gorm:"not null"`
	RequestedTime time.Time     `json:"requestedTime" gorm:"not null"`
	Description   string        `json:"description"`
	ClientLat     *float64      `json:"clientLat,omitempty"`
	ClientLng     *float64      `json:"clientLng,omitempty"`
	Status        RequestStatus `json:"status" gorm:"type:text;not null;index:idx_booking_requests_status_expires,priority:1"`
	AcceptedBy    *uint         `json:"acceptedBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ExpiresAt     time.Time     `json:"expiresAt" gorm:"not null;index:idx_booking_requests_status_expires,priority:2"`
}

// TableName specifies the table name
func (BookingRequest) TableName() string {
	return "booking_requests"
}

func (r *BookingRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// IsOverdue reports whether the offer window has closed at now. A request is still
// open at exactly ExpiresAt.
func (r *BookingRequest) IsOverdue(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
