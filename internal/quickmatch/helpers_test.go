package quickmatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/models"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

type published struct {
	ch events.Channel
	ev events.Outbound
}

// recordingGateway captures published events. Readers first wait for the
// engine's background deliveries to drain.
type recordingGateway struct {
	mu    sync.Mutex
	sent  []published
	err   error
	flush func()
}

func (g *recordingGateway) Publish(_ context.Context, ch events.Channel, ev events.Outbound) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, published{ch: ch, ev: ev})
	return g.err
}

func (g *recordingGateway) settle() {
	if g.flush != nil {
		g.flush()
	}
}

func (g *recordingGateway) all() []published {
	g.settle()
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]published(nil), g.sent...)
}

func (g *recordingGateway) to(ch events.Channel) []events.Outbound {
	var out []events.Outbound
	for _, p := range g.all() {
		if p.ch == ch {
			out = append(out, p.ev)
		}
	}
	return out
}

func (g *recordingGateway) names(ch events.Channel) []string {
	var out []string
	for _, ev := range g.to(ch) {
		out = append(out, ev.EventName())
	}
	return out
}

func (g *recordingGateway) reset() {
	g.settle()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}

func (g *recordingGateway) fail(err error) {
	g.settle()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticLogos struct{}

func (staticLogos) LogoURL(key string) string { return "https://cdn.test/" + key }

const (
	clientID   = uint(100)
	otherID    = uint(101)
	categoryID = uint(7)
	bizA       = uint(1)
	bizB       = uint(2)
	bizC       = uint(3)
	bizPricey  = uint(4)
)

type fixture struct {
	store   *repository.MemoryStore
	gateway *recordingGateway
	clock   *fakeClock
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutCategory(models.Category{ID: categoryID, Name: "Haircut"})
	store.PutUser(models.User{ID: clientID, Username: "alice", UserType: models.UserTypeClient})
	store.PutUser(models.User{ID: otherID, Username: "bob", UserType: models.UserTypeClient})

	store.PutBusiness(models.Business{ID: bizA, Name: "A Cuts", Address: "Moi Ave", Latitude: ptr(-1.2921), Longitude: ptr(36.8219), LogoKey: "a.png", Rating: 4.5})
	store.PutBusiness(models.Business{ID: bizB, Name: "B Styles", Address: "Kenyatta Ave", Rating: 4.8})
	store.PutBusiness(models.Business{ID: bizC, Name: "C Salon", Address: "Ngong Rd"})
	store.PutBusiness(models.Business{ID: bizPricey, Name: "Deluxe"})

	store.PutService(models.Service{ID: 10, BusinessID: bizA, CategoryID: categoryID, Name: "Trim", Price: 3000, Active: true})
	store.PutService(models.Service{ID: 11, BusinessID: bizA, CategoryID: categoryID, Name: "Fade", Price: 4800, Active: true})
	store.PutService(models.Service{ID: 20, BusinessID: bizB, CategoryID: categoryID, Name: "Trim", Price: 4000, Active: true})
	store.PutService(models.Service{ID: 21, BusinessID: bizB, CategoryID: 8, Name: "Nails", Price: 1000, Active: true})
	store.PutService(models.Service{ID: 30, BusinessID: bizC, CategoryID: categoryID, Name: "Trim", Price: 4500, Active: true})
	store.PutService(models.Service{ID: 40, BusinessID: bizPricey, CategoryID: categoryID, Name: "Trim", Price: 9000, Active: true})

	_, err := store.GrantCredits(context.Background(), clientID, 5)
	require.NoError(t, err)

	gw := &recordingGateway{}
	clock := &fakeClock{now: time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)}
	engine := New(store, gw, Options{Now: clock.Now, Logos: staticLogos{}})
	gw.flush = func() { require.NoError(t, engine.Flush(context.Background())) }
	return &fixture{store: store, gateway: gw, clock: clock, engine: engine}
}

func (f *fixture) submit(t *testing.T) *models.BookingRequest {
	t.Helper()
	res, err := f.engine.Intake.Submit(context.Background(), SubmitInput{
		ClientID:      clientID,
		CategoryID:    categoryID,
		OfferedPrice:  5000,
		RequestedTime: f.clock.Now().Add(24 * time.Hour),
		Description:   "short back and sides",
	})
	require.NoError(t, err)
	return res.Request
}

func (f *fixture) accept(t *testing.T, requestID uint, businesses ...uint) {
	t.Helper()
	for _, b := range businesses {
		require.NoError(t, f.engine.Ledger.RecordResponse(context.Background(), requestID, b, events.ActionAccept))
	}
}

func ptr(f float64) *float64 { return &f }
