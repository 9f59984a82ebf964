package models

import "time"

type OfferStatus string

const (
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

// Offer is one business's response to a booking request. (RequestID, BusinessID) is unique.
type Offer struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	RequestID  uint        `json:"requestId" gorm:"not null;uniqueIndex:idx_offers_request_business,priority:1"`
	BusinessID uint        `json:"businessId" gorm:"not null;uniqueIndex:idx_offers_request_business,priority:2"`
	Status     OfferStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Business   *Business   `json:"business,omitempty" gorm:"foreignKey:BusinessID"`
}

// TableName specifies the table name
func (Offer) TableName() string {
	return "offers"
}
