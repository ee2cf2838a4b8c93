package types

import "time"

type User struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	PhotoURL   string    `json:"photoUrl,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreateUserRequest struct {
	IdentityID string `json:"identityId" validate:"required,uuid"`
	Username   string `json:"username" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email"`
	PhotoURL   string `json:"photoUrl,omitempty" validate:"omitempty,url"`
	Role       string `json:"role" validate:"required,oneof=user seller"`
}
