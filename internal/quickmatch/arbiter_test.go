package quickmatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/models"
)

func TestScenarioA_WinnerAndLosersAreNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)

	f.accept(t, req.ID, bizA, bizB)
	require.NoError(t, f.engine.Ledger.RecordResponse(ctx, req.ID, bizC, events.ActionReject))

	offers, err := f.engine.Ledger.ListAccepted(ctx, req.ID, clientID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, bizA, offers[0].BusinessID)
	assert.Equal(t, bizB, offers[1].BusinessID)

	f.gateway.reset()
	booking, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizB, ClientID: clientID})
	require.NoError(t, err)
	assert.Equal(t, bizB, booking.BusinessID)
	assert.Equal(t, clientID, booking.ClientID)
	assert.Equal(t, int64(5000), booking.TotalPrice)
	assert.Equal(t, "short back and sides", booking.Notes)
	require.NotNil(t, booking.ServiceID)
	assert.Equal(t, uint(20), *booking.ServiceID)

	confirmed := events.BookingConfirmed{BookingID: booking.ID, RequestID: req.ID}
	assert.Equal(t, []events.Outbound{confirmed}, f.gateway.to(events.ClientChannel(clientID)))
	assert.Equal(t, []events.Outbound{confirmed}, f.gateway.to(events.BusinessChannel(bizB)))
	assert.Equal(t, []events.Outbound{events.RequestTaken{RequestID: req.ID, BusinessID: bizB}}, f.gateway.to(events.BusinessChannel(bizA)))
	assert.Empty(t, f.gateway.to(events.BusinessChannel(bizC)))

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusConfirmed, stored.Status)
	require.NotNil(t, stored.AcceptedBy)
	assert.Equal(t, bizB, *stored.AcceptedBy)
	assert.Equal(t, 1, f.store.CountBookings(req.ID))
}

func TestScenarioB_RepeatedConfirmIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizB)

	in := ConfirmInput{RequestID: req.ID, BusinessID: bizB, ClientID: clientID}
	_, err := f.engine.Arbiter.Confirm(ctx, in)
	require.NoError(t, err)

	before := testutil.ToFloat64(getMetrics().arbitrateTotal.WithLabelValues("confirm", "conflict"))
	_, err = f.engine.Arbiter.Confirm(ctx, in)
	assert.ErrorIs(t, err, ErrRequestResolved)
	assert.Equal(t, 1, f.store.CountBookings(req.ID))
	assert.Equal(t, before+1, testutil.ToFloat64(getMetrics().arbitrateTotal.WithLabelValues("confirm", "conflict")))
}

func TestScenarioC_SweptRequestRejectsLateAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.gateway.reset()

	f.clock.Advance(121 * time.Second)
	n, err := f.engine.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusExpired, stored.Status)
	assert.Nil(t, stored.AcceptedBy)
	assert.Equal(t, []string{events.NameRequestExpired}, f.gateway.names(events.ClientChannel(clientID)))

	err = f.engine.Ledger.RecordResponse(ctx, req.ID, bizA, events.ActionAccept)
	assert.ErrorIs(t, err, ErrRequestExpired)
	assert.Equal(t, []string{events.NameRequestExpired}, f.gateway.names(events.ClientChannel(clientID)))
	assert.Equal(t, 0, f.store.CountOffers(req.ID))
}

func TestConfirm_ConcurrentRaceHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 12
	for id := uint(50); id < 50+n; id++ {
		f.store.PutBusiness(models.Business{ID: id, Name: "racer"})
		f.store.PutService(models.Service{ID: id * 10, BusinessID: id, CategoryID: categoryID, Price: 1000, Active: true})
	}
	req := f.submit(t)
	for id := uint(50); id < 50+n; id++ {
		f.accept(t, req.ID, id)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []uint
		conflicts int
	)
	start := make(chan struct{})
	for id := uint(50); id < 50+n; id++ {
		wg.Add(1)
		go func(biz uint) {
			defer wg.Done()
			<-start
			_, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: biz, ClientID: clientID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, biz)
				return
			}
			if assert.ErrorIs(t, err, ErrConflict) {
				conflicts++
			}
		}(id)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, f.store.CountBookings(req.ID))

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AcceptedBy)
	assert.Equal(t, winners[0], *stored.AcceptedBy)
	booking, err := f.store.GetBookingByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], booking.BusinessID)

	// Every loser hears about the winner exactly once.
	for id := uint(50); id < 50+n; id++ {
		if id == winners[0] {
			continue
		}
		assert.Equal(t, []string{events.NameNewRequest, events.NameRequestTaken}, f.gateway.names(events.BusinessChannel(id)))
	}
}

func TestConfirm_ExpiryTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizA)

	f.clock.Advance(2 * time.Minute)
	// Exactly at the deadline the request is still open.
	_, err := f.engine.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, stored.IsPending())

	f.clock.Advance(time.Second)
	_, err = f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: clientID})
	assert.ErrorIs(t, err, ErrRequestExpired)

	stored, err = f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusExpired, stored.Status, "confirm expires overdue requests lazily")
	assert.Equal(t, 0, f.store.CountBookings(req.ID))

	n, err := f.engine.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfirm_RacingSweepNeverSucceedsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizA, bizB)
	f.clock.Advance(3 * time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, biz := range []uint{bizA, bizB, bizA, bizB} {
		wg.Add(1)
		go func(biz uint) {
			defer wg.Done()
			_, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: biz, ClientID: clientID})
			errs <- err
		}(biz)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.engine.Sweeper.SweepOnce(ctx)
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrRequestExpired)
	}
	assert.Equal(t, 0, f.store.CountBookings(req.ID))
	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusExpired, stored.Status)
	assert.Nil(t, stored.AcceptedBy)
}

func TestConfirm_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizA)
	require.NoError(t, f.engine.Ledger.RecordResponse(ctx, req.ID, bizC, events.ActionReject))

	_, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: 999, BusinessID: bizA, ClientID: clientID})
	assert.ErrorIs(t, err, ErrRequestNotFound)

	_, err = f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: otherID})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizB, ClientID: clientID})
	assert.ErrorIs(t, err, ErrOfferNotFound, "no offer from B")

	_, err = f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizC, ClientID: clientID})
	assert.ErrorIs(t, err, ErrOfferNotFound, "C rejected")

	foreign := uint(20)
	_, err = f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: clientID, ServiceID: &foreign})
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPending())

	chosen := uint(11)
	booking, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: clientID, ServiceID: &chosen})
	require.NoError(t, err)
	require.NotNil(t, booking.ServiceID)
	assert.Equal(t, chosen, *booking.ServiceID)
}

func TestConfirm_GatewayFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizA, bizB)
	f.gateway.reset()
	f.gateway.fail(assert.AnError)
	dropped := getMetrics().publishDropped.WithLabelValues(events.NameBookingConfirmed)
	before := testutil.ToFloat64(dropped)

	booking, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: clientID})
	require.NoError(t, err)
	assert.NotZero(t, booking.ID)
	assert.Equal(t, 1, f.store.CountBookings(req.ID))

	assert.Len(t, f.gateway.all(), 3)
	assert.Equal(t, before+2, testutil.ToFloat64(dropped))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizA)
	require.NoError(t, f.engine.Ledger.RecordResponse(ctx, req.ID, bizC, events.ActionReject))
	f.gateway.reset()

	assert.ErrorIs(t, f.engine.Arbiter.Cancel(ctx, req.ID, otherID), ErrForbidden)
	require.NoError(t, f.engine.Arbiter.Cancel(ctx, req.ID, clientID))

	assert.Equal(t, []events.Outbound{events.RequestCancelled{RequestID: req.ID}}, f.gateway.to(events.BusinessChannel(bizA)))
	assert.Empty(t, f.gateway.to(events.BusinessChannel(bizC)))

	assert.ErrorIs(t, f.engine.Arbiter.Cancel(ctx, req.ID, clientID), ErrRequestResolved)
	_, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: clientID})
	assert.ErrorIs(t, err, ErrRequestResolved)
	assert.Equal(t, 0, f.store.CountBookings(req.ID))
}

func TestCancel_AfterConfirmIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizA)

	_, err := f.engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: req.ID, BusinessID: bizA, ClientID: clientID})
	require.NoError(t, err)

	err = f.engine.Arbiter.Cancel(ctx, req.ID, clientID)
	assert.ErrorIs(t, err, ErrConflict)
	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusConfirmed, stored.Status)
}

func TestExpire_NotifiesClientAndAcceptedBusinesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t)
	f.accept(t, req.ID, bizB)
	f.gateway.reset()

	won, err := f.engine.Arbiter.Expire(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, won, "window still open")

	f.clock.Advance(5 * time.Minute)
	won, err = f.engine.Arbiter.Expire(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = f.engine.Arbiter.Expire(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, won)

	ev := events.RequestExpired{RequestID: req.ID}
	assert.Equal(t, []events.Outbound{ev}, f.gateway.to(events.ClientChannel(clientID)))
	assert.Equal(t, []events.Outbound{ev}, f.gateway.to(events.BusinessChannel(bizB)))
	assert.Empty(t, f.gateway.to(events.BusinessChannel(bizA)))
}

// stalledGateway holds every publish until release is closed.
type stalledGateway struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (g *stalledGateway) Publish(context.Context, events.Channel, events.Outbound) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return nil
}

func (g *stalledGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func TestArbitration_DoesNotWaitForDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gw := &stalledGateway{release: make(chan struct{})}
	engine := New(f.store, gw, Options{Now: f.clock.Now})

	flow := func() error {
		res, err := engine.Intake.Submit(ctx, SubmitInput{
			ClientID:      clientID,
			CategoryID:    categoryID,
			OfferedPrice:  5000,
			RequestedTime: f.clock.Now().Add(time.Hour),
		})
		if err != nil {
			return err
		}
		for _, b := range []uint{bizA, bizB, bizC} {
			if err := engine.Ledger.RecordResponse(ctx, res.Request.ID, b, events.ActionAccept); err != nil {
				return err
			}
		}
		_, err = engine.Arbiter.Confirm(ctx, ConfirmInput{RequestID: res.Request.ID, BusinessID: bizA, ClientID: clientID})
		return err
	}

	done := make(chan error, 1)
	go func() { done <- flow() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(gw.release)
		t.Fatal("arbitration blocked on notification delivery")
	}
	assert.Zero(t, gw.count())

	close(gw.release)
	require.NoError(t, engine.Flush(ctx))
	// 3 new_request, 3 request_offered, 2 booking_confirmed, 2 request_taken
	assert.Equal(t, 10, gw.count())
}

func TestEngine_FlushHonoursContext(t *testing.T) {
	f := newFixture(t)
	gw := &stalledGateway{release: make(chan struct{})}
	engine := New(f.store, gw, Options{Now: f.clock.Now})
	engine.notify(context.Background(), events.ClientChannel(clientID), events.RequestCancelled{RequestID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, engine.Flush(ctx), context.DeadlineExceeded)

	close(gw.release)
	require.NoError(t, engine.Flush(context.Background()))
	assert.Equal(t, 1, gw.count())
}
