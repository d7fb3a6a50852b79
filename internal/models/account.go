package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleCompany Role = "company"
	RoleAdmin   Role = "admin"
)

type Account struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Name         string    `json:"name" bson:"name" db:"name"`
	Email        string    `json:"email" bson:"email" db:"email"`
	Role         Role      `json:"role" bson:"role" db:"role"`
	PasswordHash string    `json:"-" bson:"password" db:"password_hash"`
	IsVerified   bool      `json:"is_verified" bson:"isVerified" db:"is_verified"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updatedAt" db:"updated_at"`
}

// PendingSignup is the payload carried by a signup credential until the code is verified.
type PendingSignup struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"password_hash"`
}
