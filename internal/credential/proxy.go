package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hackgods/calendar-proxy-scheduling/internal/calendar"
)

const (
	expiryLeeway   = 30 * time.Second
	refreshTimeout = 15 * time.Second
)

// CalendarFactory builds a calendar client over an authorized HTTP client.
type CalendarFactory func(ctx context.Context, client *http.Client, o calendar.GoogleOptions) (calendar.Calendar, error)

func googleCalendar(ctx context.Context, client *http.Client, o calendar.GoogleOptions) (calendar.Calendar, error) {
	return calendar.NewGoogleProvider(ctx, client, o)
}

// Proxy resolves a doctor identity to a working calendar client. Tokens are
// loaded, refreshed and persisted here and never handed back to callers.
type Proxy struct {
	store      Store
	auth       Authorizer
	newCal     CalendarFactory
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
	refreshing singleflight.Group
}

type ProxyOption func(*Proxy)

func WithCalendarFactory(f CalendarFactory) ProxyOption {
	return func(p *Proxy) { p.newCal = f }
}

func WithClock(now func() time.Time) ProxyOption {
	return func(p *Proxy) { p.now = now }
}

// WithCallTimeout bounds each request made by calendars built by the proxy.
func WithCallTimeout(d time.Duration) ProxyOption {
	return func(p *Proxy) { p.timeout = d }
}

func NewProxy(store Store, auth Authorizer, logger *zap.Logger, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		store:   store,
		auth:    auth,
		newCal:  googleCalendar,
		timeout: 10 * time.Second,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthURL is the consent URL a doctor visits to connect a calendar.
func (p *Proxy) AuthURL(state string) string {
	return p.auth.AuthCodeURL(state)
}

// Connect exchanges an authorization code and stores the resulting grant for owner.
func (p *Proxy) Connect(ctx context.Context, owner uuid.UUID, code string) error {
	cred, err := p.auth.Exchange(ctx, owner, code)
	if err != nil {
		p.logger.Warn("oauth code exchange failed", zap.Stringer("owner_id", owner), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if err := p.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	p.logger.Info("calendar connected", zap.Stringer("owner_id", owner), zap.Strings("scopes", cred.Scopes))
	return nil
}

// Calendar returns owner's calendar client, refreshing the grant first if needed.
func (p *Proxy) Calendar(ctx context.Context, owner uuid.UUID, calendarID string, loc *time.Location) (calendar.Calendar, error) {
	cred, err := p.validCredential(ctx, owner)
	if err != nil {
		return nil, err
	}

	cal, err := p.newCal(ctx, p.auth.Client(ctx, *cred), calendar.GoogleOptions{
		CalendarID: calendarID,
		Location:   loc,
		Timeout:    p.timeout,
		Logger:     p.logger.With(zap.Stringer("doctor_id", owner)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calendar.ErrExternalUnavailable, err)
	}
	return cal, nil
}

// validCredential is the single place a grant is checked and refreshed.
func (p *Proxy) validCredential(ctx context.Context, owner uuid.UUID) (*OAuthCredential, error) {
	cred, err := p.store.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if !cred.Expired(p.now(), expiryLeeway) {
		return cred, nil
	}

	// concurrent callers for one owner share a single refresh, detached from
	// whichever request happened to start it
	v, err, _ := p.refreshing.Do(owner.String(), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return p.refresh(refreshCtx, *cred)
	})
	if err != nil {
		return nil, err
	}
	return v.(*OAuthCredential), nil
}

func (p *Proxy) refresh(ctx context.Context, cred OAuthCredential) (*OAuthCredential, error) {
	next, err := p.auth.Refresh(ctx, cred)
	if err != nil {
		p.logger.Warn("credential refresh failed", zap.Stringer("owner_id", cred.OwnerID), zap.Error(err))
		return nil, ErrNotConnected
	}

	next.UpdatedAt = p.now()
	if err := p.store.Save(ctx, next); err != nil {
		// the fresh token still works for this call
		p.logger.Error("persist refreshed credential", zap.Stringer("owner_id", cred.OwnerID), zap.Error(err))
	}

	p.logger.Debug("credential refreshed", zap.Stringer("owner_id", cred.OwnerID), zap.Time("expiry", next.Expiry))
	return &next, nil
}
