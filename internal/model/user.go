package model

import "time"

// UserRole separates exam takers from back-office users.
type UserRole string

const (
	UserRoleCandidate UserRole = "CANDIDATE"
	UserRoleAdmin     UserRole = "ADMIN"
)

// User represents an account that can sign in and take or administer exams.
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the payload for signing in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}
