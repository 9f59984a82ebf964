package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/logging"
)

type fakeSink struct {
	name  string
	err   error
	block bool

	mu   sync.Mutex
	got  []events.Channel
	dead bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Publish(ctx context.Context, ch events.Channel, _ events.Outbound) error {
	if s.block {
		<-ctx.Done()
		s.mu.Lock()
		s.dead = true
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ch)
	return s.err
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	ok := &fakeSink{name: "ok-sink"}
	failing := &fakeSink{name: "failing-sink", err: assert.AnError}
	slow := &fakeSink{name: "slow-sink", block: true}
	f := NewFanout(20*time.Millisecond, logging.Discard(), ok, failing, slow)

	before := testutil.ToFloat64(getGatewayMetrics().WithLabelValues("ok-sink", "ok"))
	failedBefore := testutil.ToFloat64(getGatewayMetrics().WithLabelValues("failing-sink", "error"))

	err := f.Publish(context.Background(), events.ClientChannel(1), events.RequestExpired{RequestID: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []events.Channel{events.ClientChannel(1)}, ok.got)
	assert.Equal(t, []events.Channel{events.ClientChannel(1)}, failing.got)
	assert.True(t, slow.dead)

	assert.Equal(t, before+1, testutil.ToFloat64(getGatewayMetrics().WithLabelValues("ok-sink", "ok")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(getGatewayMetrics().WithLabelValues("failing-sink", "error")))
}

func TestFanout_NoSinks(t *testing.T) {
	f := NewFanout(time.Second, logging.Discard())
	assert.NoError(t, f.Publish(context.Background(), events.BusinessChannel(1), events.RequestTaken{RequestID: 1, BusinessID: 2}))
	assert.Empty(t, f.Sinks())
}

func TestFCMMessage(t *testing.T) {
	msg, err := buildFCMMessage(events.BusinessChannel(12), events.NewRequest{
		RequestID:  4,
		ClientName: "alice",
		Service:    "Haircut",
		Price:      5000,
	})
	require.NoError(t, err)

	assert.Equal(t, "business-12", msg.Topic)
	assert.Equal(t, "New Booking Request", msg.Notification.Title)
	assert.Equal(t, "alice wants Haircut for KES 5000", msg.Notification.Body)
	assert.Equal(t, events.NameNewRequest, msg.Data["type"])
	assert.Contains(t, msg.Data["payload"], `"requestId":4`)
	assert.Equal(t, "quickmatch_default", msg.Android.Notification.ChannelID)
	assert.Equal(t, "request_4", msg.Android.Notification.Tag)
	require.NotNil(t, msg.APNS.Payload.Aps.Badge)
}

func TestAMQPMessage(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	msg, err := buildAMQPMessage(events.ClientChannel(3), events.BookingConfirmed{BookingID: 1, RequestID: 2}, now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, events.NameBookingConfirmed, msg.Type)
	assert.Equal(t, "client:3", msg.Headers["channel"])
	assert.Equal(t, now, msg.Timestamp)
	assert.JSONEq(t, `{"type":"booking_confirmed","data":{"bookingId":1,"requestId":2}}`, string(msg.Body))
}

func TestLogoResolver(t *testing.T) {
	local := NewLocalLogoResolver("http://localhost:8080/")
	assert.Equal(t, "", local.LogoURL(""))
	assert.Equal(t, "http://localhost:8080/uploads/logos/a.png", local.LogoURL("logos/a.png"))
	assert.Equal(t, "https://cdn.example.com/x.png", local.LogoURL("https://cdn.example.com/x.png"))
	assert.False(t, local.UsingS3())

	s3r, err := NewS3LogoResolver(S3Options{
		Region:    "eu-west-1",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Bucket:    "quickmatch-logos",
		TTL:       15 * time.Minute,
	}, logging.Discard())
	require.NoError(t, err)
	assert.True(t, s3r.UsingS3())

	url := s3r.LogoURL("logos/a.png")
	assert.True(t, strings.Contains(url, "quickmatch-logos"), url)
	assert.Contains(t, url, "logos/a.png")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestRelayChannel(t *testing.T) {
	assert.Equal(t, "quickmatch:business:9", relayChannel(events.BusinessChannel(9)))
}
