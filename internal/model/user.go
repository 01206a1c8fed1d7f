package model

import "time"

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	Role      UserRole  `json:"role"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserSummary is the public projection embedded in team and member payloads.
type UserSummary struct {
	ID     string  `json:"id"`
	Name   *string `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
}

type AuthResult struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
