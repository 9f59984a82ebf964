package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Event names accepted from parties.
const (
	NameBookingRequest   = "booking_request"
	NameBusinessResponse = "business_response"
	NameConfirmBooking   = "confirm_booking"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Inbound is the closed set of party to system messages.
type Inbound interface {
	EventName() string
	inbound()
}

type BookingRequest struct {
	CategoryID    uint      `json:"categoryId" validate:"required"`
	Description   string    `json:"description" validate:"max=1000"`
	OfferedPrice  int64     `json:"offeredPrice" validate:"gt=0"`
	RequestedTime time.Time `json:"requestedTime" validate:"required"`
	ClientLat     *float64  `json:"clientLat,omitempty" validate:"omitempty,latitude"`
	ClientLng     *float64  `json:"clientLng,omitempty" validate:"omitempty,longitude"`
}

func (BookingRequest) EventName() string { return NameBookingRequest }
func (BookingRequest) inbound()          {}

type BusinessResponse struct {
	RequestID uint   `json:"requestId" validate:"required"`
	Action    Action `json:"action" validate:"required,oneof=accept reject"`
}

func (BusinessResponse) EventName() string { return NameBusinessResponse }
func (BusinessResponse) inbound()          {}

type ConfirmBooking struct {
	RequestID  uint  `json:"requestId" validate:"required"`
	BusinessID uint  `json:"businessId" validate:"required"`
	ServiceID  *uint `json:"serviceId,omitempty" validate:"omitempty,gt=0"`
}

func (ConfirmBooking) EventName() string { return NameConfirmBooking }
func (ConfirmBooking) inbound()          {}

// ErrUnknownType is returned by Decode for frames outside the inbound set.
var ErrUnknownType = errors.New("unknown event type")

// DecodeError carries the frame type so callers can answer with the matching
// error event.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Err.Error())
}

func (e *DecodeError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses a {type, data} frame into its typed variant and validates it.
// Unknown fields are rejected.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Err: errors.Wrap(err, "malformed frame")}
	}

	var ev Inbound
	switch env.Type {
	case NameBookingRequest:
		var e BookingRequest
		if err := strictUnmarshal(env.Data, &e); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		ev = e
	case NameBusinessResponse:
		var e BusinessResponse
		if err := strictUnmarshal(env.Data, &e); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		ev = e
	case NameConfirmBooking:
		var e ConfirmBooking
		if err := strictUnmarshal(env.Data, &e); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		ev = e
	default:
		return nil, &DecodeError{Type: env.Type, Err: ErrUnknownType}
	}

	if err := Validate(ev); err != nil {
		return nil, &DecodeError{Type: env.Type, Err: err}
	}
	return ev, nil
}

func strictUnmarshal(data []byte, dst interface{}) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "invalid payload")
	}
	return nil
}

// Validate checks an inbound event against its schema. It is also used by the
// REST handlers after JSON binding.
func Validate(ev Inbound) error {
	if err := validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidation(verrs)
		}
		return errors.Wrap(err, "invalid payload")
	}
	if br, ok := ev.(BookingRequest); ok && (br.ClientLat == nil) != (br.ClientLng == nil) {
		return errors.New("clientLat and clientLng must be provided together")
	}
	return nil
}

func formatValidation(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
