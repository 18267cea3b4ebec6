package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tazhate/freebusy/internal/domain"
)

var (
	ErrInvalidUsername = errors.New("username must be 1-32 letters, digits, '_' or '-'")
	ErrEmptyPassword   = errors.New("password cannot be empty")
	ErrBadCredentials  = errors.New("wrong username or password")
	ErrSelfFriend      = errors.New("cannot add yourself as a friend")
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// UserStore is the storage the user service works against.
type UserStore interface {
	CreateUser(u *domain.User) error
	GetUserByName(username string) (*domain.User, error)
	GetUserByTelegramID(telegramID int64) (*domain.User, error)
	ListUsers() ([]*domain.User, error)
	LinkTelegram(username string, telegramID int64) error
	AddFriend(username, friend string) error
	ListFriends(username string) ([]string, error)
}

type UserService struct {
	store UserStore
	log   zerolog.Logger
}

func NewUserService(store UserStore, log zerolog.Logger) *UserService {
	return &UserService{
		store: store,
		log:   log.With().Str("component", "users").Logger(),
	}
}

// AddUser registers a new user. The password is stored as a bcrypt hash.
func (s *UserService) AddUser(username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if !usernameRe.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{Username: username, Password: string(hash)}
	if err := s.store.CreateUser(u); err != nil {
		return nil, err
	}

	s.log.Info().Str("user", username).Int64("user_id", u.ID).Msg("user added")
	return u, nil
}

// GetUser returns the user or domain.ErrUnknownUser.
func (s *UserService) GetUser(username string) (*domain.User, error) {
	u, err := s.store.GetUserByName(username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("username %s: %w", username, domain.ErrUnknownUser)
	}
	return u, nil
}

func (s *UserService) ListUsers() ([]*domain.User, error) {
	return s.store.ListUsers()
}

// Authenticate checks a username/password pair.
func (s *UserService) Authenticate(username, password string) (*domain.User, error) {
	u, err := s.store.GetUserByName(username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// LinkTelegram binds a Telegram account to an existing user after checking
// the password.
func (s *UserService) LinkTelegram(username, password string, telegramID int64) (*domain.User, error) {
	u, err := s.Authenticate(username, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.LinkTelegram(u.Username, telegramID); err != nil {
		return nil, fmt.Errorf("link telegram: %w", err)
	}
	u.TelegramID = &telegramID

	s.log.Info().Str("user", u.Username).Int64("telegram_id", telegramID).Msg("telegram linked")
	return u, nil
}

// UserByTelegram returns the user linked to a Telegram account, or nil.
func (s *UserService) UserByTelegram(telegramID int64) (*domain.User, error) {
	return s.store.GetUserByTelegramID(telegramID)
}

// LinkedUsers returns users that have a Telegram account attached.
func (s *UserService) LinkedUsers() ([]*domain.User, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, err
	}
	var linked []*domain.User
	for _, u := range users {
		if u.TelegramID != nil {
			linked = append(linked, u)
		}
	}
	return linked, nil
}

// AddFriend puts friend into username's friend list. Friendship is one-way.
func (s *UserService) AddFriend(username, friend string) error {
	friend = strings.TrimSpace(friend)
	if username == friend {
		return ErrSelfFriend
	}
	if err := s.store.AddFriend(username, friend); err != nil {
		return err
	}
	s.log.Info().Str("user", username).Str("friend", friend).Msg("friend added")
	return nil
}

func (s *UserService) ListFriends(username string) ([]string, error) {
	return s.store.ListFriends(username)
}
