package entity

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("user not found")

// User is a lead owner. Leads reference users by ID only.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UserRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*User, error)
}
