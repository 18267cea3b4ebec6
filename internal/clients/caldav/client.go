package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// DefaultURL is used when no server is configured.
const DefaultURL = "https://caldav.icloud.com"

// Client reads busy events from a CalDAV server.
type Client struct {
	endpoint string
	http     webdav.HTTPClient

	mu       sync.Mutex
	dav      *caldav.Client
	resolved map[string]string // calendar reference -> collection path
}

func NewClient(endpoint, username, password string) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Client{
		endpoint: endpoint,
		http:     webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: 30 * time.Second}, username, password),
		resolved: make(map[string]string),
	}
}

func (c *Client) conn() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dav != nil {
		return c.dav, nil
	}
	dav, err := caldav.NewClient(c.http, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.endpoint, err)
	}
	c.dav = dav
	return dav, nil
}

// Calendars lists the calendar collections in the user's home set.
func (c *Client) Calendars(ctx context.Context) ([]Calendar, error) {
	dav, err := c.conn()
	if err != nil {
		return nil, err
	}

	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}
	found, err := dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	cals := make([]Calendar, 0, len(found))
	for _, cal := range found {
		cals = append(cals, Calendar{Path: cal.Path, Name: cal.Name})
	}
	return cals, nil
}

// resolve turns a collection path, a display name or "" (first calendar)
// into a collection path. Discovered paths are cached per reference.
func (c *Client) resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "/") || strings.Contains(ref, "://") {
		return ref, nil
	}

	c.mu.Lock()
	path, ok := c.resolved[ref]
	c.mu.Unlock()
	if ok {
		return path, nil
	}

	cals, err := c.Calendars(ctx)
	if err != nil {
		return "", err
	}
	path, err = pickCalendar(cals, ref)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.resolved[ref] = path
	c.mu.Unlock()
	return path, nil
}

func pickCalendar(cals []Calendar, ref string) (string, error) {
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}
	if ref == "" {
		return cals[0].Path, nil
	}
	for _, cal := range cals {
		if strings.EqualFold(cal.Name, ref) {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found", ref)
}

// GetEvents returns the VEVENTs of calendar that intersect [from, to).
// Objects that fail to parse are skipped.
func (c *Client) GetEvents(ctx context.Context, calendar string, from, to time.Time) ([]Event, error) {
	dav, err := c.conn()
	if err != nil {
		return nil, err
	}
	path, err := c.resolve(ctx, calendar)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := dav.QueryCalendar(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}

	events := make([]Event, 0, len(objects))
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		ev, err := ParseCalendar(obj.Data)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
