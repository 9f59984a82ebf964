package events

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Event names pushed to parties.
const (
	NameNewRequest       = "new_request"
	NameRequestOffered   = "request_offered"
	NameBookingConfirmed = "booking_confirmed"
	NameRequestTaken     = "request_taken"
	NameRequestCancelled = "request_cancelled"
	NameRequestExpired   = "request_expired"

	NameRequestCreated   = "request_created"
	NameRequestError     = "request_error"
	NameResponseRecorded = "response_recorded"
	NameResponseError    = "response_error"
	NameBookingError     = "booking_error"
	NameError            = "error"
)

// Outbound is the closed set of system to party messages.
type Outbound interface {
	EventName() string
}

// Envelope is the wire frame used on websockets and the relay.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func Encode(ev Outbound) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", ev.EventName())
	}
	return json.Marshal(Envelope{Type: ev.EventName(), Data: data})
}

type NewRequest struct {
	RequestID   uint      `json:"requestId"`
	ClientName  string    `json:"clientName"`
	Service     string    `json:"service"`
	Price       int64     `json:"price"`
	Time        time.Time `json:"time"`
	Description string    `json:"description,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (NewRequest) EventName() string { return NameNewRequest }

type RequestOffered struct {
	RequestID    uint     `json:"requestId"`
	BusinessID   uint     `json:"businessId"`
	BusinessName string   `json:"businessName"`
	Address      string   `json:"address"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
	Price        int64    `json:"price"`
	Rating       float64  `json:"rating"`
	LogoURL      string   `json:"logoUrl,omitempty"`
}

func (RequestOffered) EventName() string { return NameRequestOffered }

type BookingConfirmed struct {
	BookingID uint `json:"bookingId"`
	RequestID uint `json:"requestId"`
}

func (BookingConfirmed) EventName() string { return NameBookingConfirmed }

// RequestTaken tells a losing bidder the request went to BusinessID.
type RequestTaken struct {
	RequestID  uint `json:"requestId"`
	BusinessID uint `json:"businessId"`
}

func (RequestTaken) EventName() string { return NameRequestTaken }

type RequestCancelled struct {
	RequestID uint `json:"requestId"`
}

func (RequestCancelled) EventName() string { return NameRequestCancelled }

type RequestExpired struct {
	RequestID uint `json:"requestId"`
}

func (RequestExpired) EventName() string { return NameRequestExpired }

type RequestCreated struct {
	RequestID uint      `json:"requestId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (RequestCreated) EventName() string { return NameRequestCreated }

type RequestError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (RequestError) EventName() string { return NameRequestError }

type ResponseRecorded struct {
	RequestID uint   `json:"requestId"`
	Action    Action `json:"action"`
}

func (ResponseRecorded) EventName() string { return NameResponseRecorded }

type ResponseError struct {
	RequestID uint   `json:"requestId,omitempty"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
}

func (ResponseError) EventName() string { return NameResponseError }

type BookingError struct {
	RequestID uint   `json:"requestId,omitempty"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
}

func (BookingError) EventName() string { return NameBookingError }

// Error answers frames whose type is not recognised.
type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() string { return NameError }
