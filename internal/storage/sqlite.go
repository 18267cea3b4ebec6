package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tazhate/freebusy/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(user_id),
			CHECK (start_time <= end_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_end ON events(user_id, end_time, start_time)`,
		`CREATE TABLE IF NOT EXISTS recurring (
			event_id INTEGER PRIMARY KEY,
			mon INTEGER NOT NULL DEFAULT 0,
			tue INTEGER NOT NULL DEFAULT 0,
			wed INTEGER NOT NULL DEFAULT 0,
			thur INTEGER NOT NULL DEFAULT 0,
			fri INTEGER NOT NULL DEFAULT 0,
			sat INTEGER NOT NULL DEFAULT 0,
			sun INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (event_id) REFERENCES events(event_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			user_id INTEGER NOT NULL,
			friend_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, friend_id),
			FOREIGN KEY (user_id) REFERENCES users(user_id),
			FOREIGN KEY (friend_id) REFERENCES users(user_id)
		)`,
		// Telegram link for the chat front end
		`ALTER TABLE users ADD COLUMN telegram_id INTEGER`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_telegram ON users(telegram_id)`,
		// CalDAV import
		`ALTER TABLE events ADD COLUMN caldav_uid TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_events_caldav ON events(user_id, caldav_uid)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Users ===

const userColumns = `user_id, username, password, telegram_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	u := &domain.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.TelegramID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser adds a user; the username must not be taken.
func (s *Storage) CreateUser(u *domain.User) error {
	existing, err := s.GetUserByName(u.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("username %s: %w", u.Username, domain.ErrUserExists)
	}

	res, err := s.db.Exec(
		`INSERT INTO users (username, password, telegram_id) VALUES (?, ?, ?)`,
		u.Username, u.Password, u.TelegramID,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetUserByName(username string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *Storage) GetUserByTelegramID(telegramID int64) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// ListUsers returns all users
func (s *Storage) ListUsers() ([]*domain.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LinkTelegram attaches a Telegram account to a user, detaching it from
// whichever user had it before.
func (s *Storage) LinkTelegram(username string, telegramID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE users SET telegram_id = NULL WHERE telegram_id = ?`, telegramID); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE users SET telegram_id = ? WHERE username = ?`, telegramID, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("username %s: %w", username, domain.ErrUnknownUser)
	}
	return tx.Commit()
}

func (s *Storage) userID(q interface {
	QueryRow(string, ...any) *sql.Row
}, username string) (int64, error) {
	var id int64
	err := q.QueryRow(`SELECT user_id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("username %s: %w", username, domain.ErrUnknownUser)
	}
	return id, err
}

// === Events ===

const eventSelect = `SELECT e.event_id, u.username, e.event_name, e.start_time, e.end_time, e.caldav_uid, e.created_at,
		COALESCE(r.mon, 0), COALESCE(r.tue, 0), COALESCE(r.wed, 0), COALESCE(r.thur, 0),
		COALESCE(r.fri, 0), COALESCE(r.sat, 0), COALESCE(r.sun, 0)
	FROM events e
	JOIN users u ON e.user_id = u.user_id
	LEFT JOIN recurring r ON e.event_id = r.event_id`

func scanEvent(row interface{ Scan(...any) error }) (domain.Event, error) {
	var e domain.Event
	var days [7]bool
	err := row.Scan(&e.ID, &e.Owner, &e.Name, &e.Start, &e.End, &e.UID, &e.CreatedAt,
		&days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6])
	e.Days = domain.MaskFromBools(days)
	return e, err
}

// SortedEvents returns all events of a user ordered by end time, ties by
// start time. Unknown users yield domain.ErrUnknownUser.
func (s *Storage) SortedEvents(username string) ([]domain.Event, error) {
	if _, err := s.userID(s.db, username); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(eventSelect+`
		WHERE u.username = ?
		ORDER BY e.end_time, e.start_time, e.event_id`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateEvent stores an event and its weekday mask. It does not check for
// overlaps; callers validate first.
func (s *Storage) CreateEvent(e *domain.Event) error {
	if !e.Valid() {
		return fmt.Errorf("event %s has start time %d which is after end time %d", e.Name, e.Start, e.End)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	userID, err := s.userID(tx, e.Owner)
	if err != nil {
		return err
	}

	res, err := tx.Exec(
		`INSERT INTO events (user_id, event_name, start_time, end_time, caldav_uid) VALUES (?, ?, ?, ?, ?)`,
		userID, e.Name, e.Start, e.End, e.UID,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, _ := res.LastInsertId()

	days := e.Days.Bools()
	_, err = tx.Exec(
		`INSERT INTO recurring (event_id, mon, tue, wed, thur, fri, sat, sun) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, days[0], days[1], days[2], days[3], days[4], days[5], days[6],
	)
	if err != nil {
		return fmt.Errorf("insert recurring: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetEvent(id int64) (*domain.Event, error) {
	e, err := scanEvent(s.db.QueryRow(eventSelect+` WHERE e.event_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Storage) DeleteEvent(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM recurring WHERE event_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM events WHERE event_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEventNotFound
	}
	return tx.Commit()
}

// EventUIDExists reports whether the user already has an event imported
// with the given CalDAV UID.
func (s *Storage) EventUIDExists(username, uid string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events e JOIN users u ON e.user_id = u.user_id
		 WHERE u.username = ? AND e.caldav_uid = ?`,
		username, uid,
	).Scan(&count)
	return count > 0, err
}

// === Friends ===

// AddFriend makes friend appear in username's friend list.
func (s *Storage) AddFriend(username, friend string) error {
	userID, err := s.userID(s.db, username)
	if err != nil {
		return err
	}
	friendID, err := s.userID(s.db, friend)
	if err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?`, userID, friendID,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s is already a friend of %s: %w", friend, username, domain.ErrAlreadyFriends)
	}

	_, err = s.db.Exec(`INSERT INTO friends (user_id, friend_id) VALUES (?, ?)`, userID, friendID)
	return err
}

// ListFriends returns the usernames in username's friend list.
func (s *Storage) ListFriends(username string) ([]string, error) {
	if _, err := s.userID(s.db, username); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT f.username
		FROM friends
		JOIN users u ON friends.user_id = u.user_id
		JOIN users f ON friends.friend_id = f.user_id
		WHERE u.username = ?
		ORDER BY f.username`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
