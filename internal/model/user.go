package model

import "time"

// Roles recognised by the API.  CUSTOMER accounts hold seats and buy
// tickets; ADMIN accounts manage halls, screenings and sweeps.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// User is an account that can authenticate against the API.  Only a
// bcrypt hash of the password is ever stored.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email (unique)
	PasswordHash string    // users.password_hash
	Role         string    // users.role (CUSTOMER or ADMIN)
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
