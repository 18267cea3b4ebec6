package bot

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/engine"
	"github.com/tazhate/freebusy/internal/service"
)

// API Response types
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Telegram  bool   `json:"telegram_linked"`
	CreatedAt string `json:"created_at"`
}

type EventResponse struct {
	ID        int64    `json:"id"`
	User      string   `json:"user"`
	Name      string   `json:"name"`
	Start     int64    `json:"start"`
	End       int64    `json:"end"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Days      []string `json:"days"`
	UID       string   `json:"uid,omitempty"`
}

type FreeWindowResponse struct {
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Minutes   int64  `json:"minutes"`
}

type FreeResponse struct {
	Users   []string             `json:"users"`
	From    int64                `json:"from"`
	To      int64                `json:"to"`
	Windows []FreeWindowResponse `json:"windows"`
}

// instant accepts either minutes as a JSON number or a string in
// domain.TimeLayout.
type instant int64

func (t *instant) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := domain.ParseInstant(s)
	if err != nil {
		return err
	}
	*t = instant(v)
	return nil
}

// SetupAPI registers API routes with Basic Auth
func (b *Bot) SetupAPI(mux *http.ServeMux) {
	if !b.cfg.APIEnabled() {
		return // API disabled if no credentials
	}

	mux.HandleFunc("/api/users", b.basicAuth(b.apiUsers))
	mux.HandleFunc("/api/friends", b.basicAuth(b.apiFriends))
	mux.HandleFunc("/api/events", b.basicAuth(b.apiEvents))
	mux.HandleFunc("/api/event/", b.basicAuth(b.apiEvent))
	mux.HandleFunc("/api/free", b.basicAuth(b.apiFree))
	mux.HandleFunc("/api/calendar.ics", b.basicAuth(b.apiCalendarICS))
	mux.HandleFunc("/api/freebusy.ics", b.basicAuth(b.apiFreeBusyICS))
	mux.HandleFunc("/api/sync", b.basicAuth(b.apiSync))
}

// basicAuth middleware
func (b *Bot) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(username), []byte(b.cfg.APIUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(b.cfg.APIPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="freebusy API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *Bot) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonCreated(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	b.jsonErrorData(w, err, nil, status)
}

func (b *Bot) jsonErrorData(w http.ResponseWriter, err string, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err, Data: data})
}

// freeQueryError reports a bad free-time query. Lookups of unknown users
// keep their 404; everything else is a malformed parameter.
func (b *Bot) freeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUnknownUser) {
		b.serviceError(w, err)
		return
	}
	b.jsonError(w, err.Error(), http.StatusBadRequest)
}

// serviceError maps domain and engine errors to HTTP statuses. Conflicts
// carry the conflicting event.
func (b *Bot) serviceError(w http.ResponseWriter, err error) {
	var rej *engine.Rejection
	switch {
	case errors.As(err, &rej) && rej.Conflict != nil:
		b.jsonErrorData(w, err.Error(), eventToResponse(*rej.Conflict), http.StatusConflict)
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrAlreadyFriends):
		b.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrUnknownUser),
		errors.Is(err, domain.ErrEventNotFound):
		b.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, service.ErrRangeTooLarge),
		errors.Is(err, service.ErrEmptyName),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrSelfFriend):
		b.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNoSource):
		b.jsonError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		b.log.Error().Err(err).Msg("api error")
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/users - list users
// POST /api/users - create user
func (b *Bot) apiUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := b.users.ListUsers()
		if err != nil {
			b.serviceError(w, err)
			return
		}
		resp := make([]UserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, userToResponse(u))
		}
		b.jsonResponse(w, resp)

	case http.MethodPost:
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		u, err := b.users.AddUser(req.Username, req.Password)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonCreated(w, userToResponse(u))

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/friends?user=alice - list friends
// POST /api/friends - add friend
func (b *Bot) apiFriends(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user := r.URL.Query().Get("user")
		if user == "" {
			b.jsonError(w, "user is required", http.StatusBadRequest)
			return
		}
		friends, err := b.users.ListFriends(user)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		if friends == nil {
			friends = []string{}
		}
		b.jsonResponse(w, friends)

	case http.MethodPost:
		var req struct {
			User   string `json:"user"`
			Friend string `json:"friend"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.User == "" || req.Friend == "" {
			b.jsonError(w, "user and friend are required", http.StatusBadRequest)
			return
		}
		if err := b.users.AddFriend(req.User, req.Friend); err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonResponse(w, map[string]string{"user": req.User, "friend": req.Friend})

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/events?user=alice - list events sorted by end time
// POST /api/events - validate and add event
func (b *Bot) apiEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user := r.URL.Query().Get("user")
		if user == "" {
			b.jsonError(w, "user is required", http.StatusBadRequest)
			return
		}
		events, err := b.calendar.ListEvents(user)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonResponse(w, eventsToResponse(events))

	case http.MethodPost:
		var req struct {
			User  string   `json:"user"`
			Name  string   `json:"name"`
			Start *instant `json:"start"`
			End   *instant `json:"end"`
			Days  []string `json:"days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.User == "" || req.Name == "" || req.Start == nil || req.End == nil {
			b.jsonError(w, "user, name, start and end are required", http.StatusBadRequest)
			return
		}
		days, err := domain.ParseWeekdayMask(strings.Join(req.Days, ","))
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		e := domain.Event{
			Owner: req.User,
			Name:  req.Name,
			Start: int64(*req.Start),
			End:   int64(*req.End),
			Days:  days,
		}
		if err := b.calendar.AddEvent(&e); err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonCreated(w, eventToResponse(e))

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// DELETE /api/event/{id}?user=alice - delete event
func (b *Bot) apiEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/event/")
	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.jsonError(w, "Invalid event ID", http.StatusBadRequest)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		b.jsonError(w, "user is required", http.StatusBadRequest)
		return
	}

	if err := b.calendar.DeleteEvent(user, eventID); err != nil {
		b.serviceError(w, err)
		return
	}
	b.jsonResponse(w, map[string]interface{}{
		"deleted": eventID,
		"message": "Event deleted",
	})
}

// freeQuery reads users, from and to. "user" plus "friends=true" expands
// to the friend list.
func (b *Bot) freeQuery(r *http.Request) ([]string, int64, int64, error) {
	q := r.URL.Query()

	from, err := domain.ParseInstant(q.Get("from"))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("from: %w", err)
	}
	to, err := domain.ParseInstant(q.Get("to"))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("to: %w", err)
	}

	var users []string
	for _, u := range strings.Split(q.Get("users"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	if user := q.Get("user"); user != "" {
		users = append([]string{user}, users...)
		if q.Get("friends") == "true" {
			friends, err := b.users.ListFriends(user)
			if err != nil {
				return nil, 0, 0, err
			}
			users = append(users, friends...)
		}
	}
	return users, from, to, nil
}

// GET /api/free?users=alice,bob&from=...&to=... - common free windows
func (b *Bot) apiFree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, from, to, err := b.freeQuery(r)
	if err != nil {
		b.freeQueryError(w, err)
		return
	}

	free, err := b.calendar.ComputeFreeTime(users, from, to)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	resp := FreeResponse{Users: users, From: from, To: to, Windows: make([]FreeWindowResponse, 0, len(free))}
	if resp.Users == nil {
		resp.Users = []string{}
	}
	for _, f := range free {
		resp.Windows = append(resp.Windows, FreeWindowResponse{
			Start:     f.Start,
			End:       f.End,
			StartTime: formatMinutes(f.Start),
			EndTime:   formatMinutes(f.End),
			Minutes:   f.Duration(),
		})
	}
	b.jsonResponse(w, resp)
}

// GET /api/calendar.ics?user=alice - export events as iCalendar
// POST /api/calendar.ics?user=alice - import VEVENTs, skipping conflicts
func (b *Bot) apiCalendarICS(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		b.jsonError(w, "user is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		var buf bytes.Buffer
		if err := b.calendar.ExportEvents(&buf, user); err != nil {
			b.serviceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Write(buf.Bytes())

	case http.MethodPost:
		res, err := b.sync.ImportICS(user, r.Body)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownUser) {
				b.serviceError(w, err)
				return
			}
			b.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.jsonResponse(w, res)

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/freebusy.ics?users=alice,bob&from=...&to=... - VFREEBUSY export
func (b *Bot) apiFreeBusyICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, from, to, err := b.freeQuery(r)
	if err != nil {
		b.freeQueryError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := b.calendar.ExportFreeBusy(&buf, users, from, to); err != nil {
		b.serviceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Write(buf.Bytes())
}

// POST /api/sync - run CalDAV sync now
func (b *Bot) apiSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := b.sync.Sync(r.Context(), b.now())
	if err != nil {
		b.serviceError(w, err)
		return
	}
	b.jsonResponse(w, res)
}

func formatMinutes(m int64) string {
	return domain.TimeFromMinutes(m).Format(time.RFC3339)
}

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Telegram:  u.TelegramID != nil,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func eventToResponse(e domain.Event) EventResponse {
	days := []string{}
	if !e.Days.Empty() {
		days = strings.Split(e.Days.String(), ",")
	}
	return EventResponse{
		ID:        e.ID,
		User:      e.Owner,
		Name:      e.Name,
		Start:     e.Start,
		End:       e.End,
		StartTime: formatMinutes(e.Start),
		EndTime:   formatMinutes(e.End),
		Days:      days,
		UID:       e.UID,
	}
}

func eventsToResponse(events []domain.Event) []EventResponse {
	result := make([]EventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, eventToResponse(e))
	}
	return result
}
