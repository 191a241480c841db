package entity

import (
	"slices"
	"time"
)

type User struct {
	ID           uint64
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	IsSuperadmin bool
	RoleID       uint64
	Role         string
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) HasPermission(name string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Permissions, name)
}
