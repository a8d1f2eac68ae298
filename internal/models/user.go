package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          string
	FullName       string
	HashedPassword string
	LastLoginAt    *time.Time // nil until the first login
}
