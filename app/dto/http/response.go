package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
)

type MessageResponse struct {
	Message string `json:"message"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID           uint64    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	IsActive     bool      `json:"is_active"`
	IsSuperadmin bool      `json:"is_superadmin"`
	Role         string    `json:"role"`
	Permissions  []string  `json:"permissions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewUserResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		IsActive:     user.IsActive,
		IsSuperadmin: user.IsSuperadmin,
		Role:         user.Role,
		Permissions:  user.Permissions,
		CreatedAt:    user.CreatedAt,
	}
}

type UserListResponse struct {
	Users  []UserResponse `json:"users"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type VerifyTokenResponse struct {
	User    UserResponse `json:"user"`
	Allowed *bool        `json:"allowed,omitempty"`
}
