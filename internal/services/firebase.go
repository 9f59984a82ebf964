package services

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/chachabrian/quickmatch-backend/internal/events"
)

// fcmSender is the part of *messaging.Client the publisher needs.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher pushes events to mobile devices. Each party's devices subscribe to the
// topic derived from its channel, e.g. "client-12".
type FCMPublisher struct {
	client fcmSender
}

// NewFCMPublisher initializes the Firebase Admin SDK from a service account file.
func NewFCMPublisher(ctx context.Context, credentialsFile string) (*FCMPublisher, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "error initializing firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error getting messaging client")
	}
	return &FCMPublisher{client: client}, nil
}

func (p *FCMPublisher) Name() string { return "fcm" }

func (p *FCMPublisher) Publish(ctx context.Context, ch events.Channel, ev events.Outbound) error {
	msg, err := buildFCMMessage(ch, ev)
	if err != nil {
		return err
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "error sending topic message")
	}
	return nil
}

// TopicFor maps a party channel to its FCM topic name.
func TopicFor(ch events.Channel) string {
	return strings.ReplaceAll(ch.String(), ":", "-")
}

// NotificationPayload is the user-visible part of a push message.
type NotificationPayload struct {
	Title string
	Body  string
	Tag   string
}

func notificationFor(ev events.Outbound) NotificationPayload {
	switch e := ev.(type) {
	case events.NewRequest:
		return NotificationPayload{
			Title: "New Booking Request",
			Body:  fmt.Sprintf("%s wants %s for KES %d", e.ClientName, e.Service, e.Price),
			Tag:   fmt.Sprintf("request_%d", e.RequestID),
		}
	case events.RequestOffered:
		return NotificationPayload{
			Title: "New Offer",
			Body:  fmt.Sprintf("%s can take your booking", e.BusinessName),
			Tag:   fmt.Sprintf("request_%d", e.RequestID),
		}
	case events.BookingConfirmed:
		return NotificationPayload{
			Title: "Booking Confirmed",
			Body:  "Your booking has been confirmed",
			Tag:   fmt.Sprintf("request_%d", e.RequestID),
		}
	case events.RequestTaken:
		return NotificationPayload{
			Title: "Request Taken",
			Body:  "The client chose another business",
			Tag:   fmt.Sprintf("request_%d", e.RequestID),
		}
	case events.RequestCancelled:
		return NotificationPayload{
			Title: "Request Cancelled",
			Body:  "The client cancelled this request",
			Tag:   fmt.Sprintf("request_%d", e.RequestID),
		}
	case events.RequestExpired:
		return NotificationPayload{
			Title: "Request Expired",
			Body:  "No booking was confirmed in time",
			Tag:   fmt.Sprintf("request_%d", e.RequestID),
		}
	}
	return NotificationPayload{Title: "Quick Match", Body: "You have a new update"}
}

func buildFCMMessage(ch events.Channel, ev events.Outbound) (*messaging.Message, error) {
	payload, err := events.Encode(ev)
	if err != nil {
		return nil, err
	}
	n := notificationFor(ev)
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: map[string]string{
			"type":    ev.EventName(),
			"payload": string(payload),
		},
		Topic:   TopicFor(ch),
		Android: getAndroidConfig(n),
		APNS:    getAPNSConfig(),
	}, nil
}

func getAndroidConfig(n NotificationPayload) *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Sound:                 "default",
			ChannelID:             "quickmatch_default",
			Priority:              messaging.PriorityHigh,
			DefaultSound:          true,
			Icon:                  "ic_stat_logo",
			Tag:                   n.Tag,
			DefaultVibrateTimings: true,
		},
	}
}

func getAPNSConfig() *messaging.APNSConfig {
	badge := 1
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound:            "default",
				Badge:            &badge,
				MutableContent:   true,
				ContentAvailable: true,
			},
		},
	}
}
