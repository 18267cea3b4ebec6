package domain

import (
	"errors"
	"time"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrUserExists     = errors.New("username already taken")
	ErrAlreadyFriends = errors.New("already friends")
	ErrEventNotFound  = errors.New("event not found")
)

type User struct {
	ID         int64
	Username   string
	Password   string
	TelegramID *int64 // Linked Telegram account (optional)
	CreatedAt  time.Time
}
