package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mindora-health/mindora-platform/pkg/logging"
)

// Client is the narrow surface the resolver needs from a calendar vendor.
// Implementations can be swapped without touching classification or overlap
// logic.
type Client interface {
	// ListEvents fetches all events overlapping [from, to).
	ListEvents(ctx context.Context, conn Connection, from, to time.Time) ([]Event, error)

	// Refresh exchanges the refresh token for a fresh access token. A revoked
	// or expired refresh token yields ErrConnectionExpired.
	Refresh(ctx context.Context, conn Connection) (Connection, error)
}

// GoogleClient talks to the Google Calendar API on behalf of a provider.
type GoogleClient struct {
	clientID     string
	clientSecret string
	loc          *time.Location
	logger       *logging.Logger
}

// GoogleConfig holds the OAuth app credentials for the calendar integration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// NewGoogleClient creates a calendar client. loc is the platform timezone used
// to anchor all-day events.
func NewGoogleClient(cfg GoogleConfig, loc *time.Location, logger *logging.Logger) *GoogleClient {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		loc:          loc,
		logger:       logger,
	}
}

func (c *GoogleClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}
}

// ListEvents fetches the provider's primary-calendar events for the range.
func (c *GoogleClient) ListEvents(ctx context.Context, conn Connection, from, to time.Time) ([]Event, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conn.AccessToken})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("gcal: build calendar service: %w", err)
	}

	call := svc.Events.List("primary").
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(2500)

	resp, err := call.Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 401 {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("gcal: list events: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		start, okStart := c.eventTime(item.Start, false)
		end, okEnd := c.eventTime(item.End, true)
		if !okStart || !okEnd {
			c.logger.Debug("gcal: skipping event without usable times", "event_id", item.Id)
			continue
		}
		events = append(events, Event{
			ID:     item.Id,
			Title:  item.Summary,
			Status: item.Status,
			Start:  start,
			End:    end,
		})
	}
	return events, nil
}

// eventTime converts a Google event boundary to an instant. Timed events carry
// RFC3339 datetimes; all-day events carry bare dates interpreted as local
// midnight (the end date is already exclusive in the API).
func (c *GoogleClient) eventTime(edt *calendar.EventDateTime, isEnd bool) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation(time.DateOnly, edt.Date, c.loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Refresh exchanges the stored refresh token for a new access token.
func (c *GoogleClient) Refresh(ctx context.Context, conn Connection) (Connection, error) {
	if conn.RefreshToken == "" {
		return Connection{}, ErrConnectionExpired
	}

	source := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	token, err := source.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && (rerr.ErrorCode == "invalid_grant" || rerr.Response != nil && rerr.Response.StatusCode == 400) {
			return Connection{}, fmt.Errorf("%w: %v", ErrConnectionExpired, err)
		}
		return Connection{}, fmt.Errorf("gcal: refresh token: %w", err)
	}

	refreshed := conn
	refreshed.AccessToken = token.AccessToken
	refreshed.TokenExpiry = token.Expiry
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	return refreshed, nil
}

var _ Client = (*GoogleClient)(nil)
