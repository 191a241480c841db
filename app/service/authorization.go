package service

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
)

// CheckPermission is a guard: it returns ErrAccessDenied unless the user's role grants name.
func CheckPermission(user *entity.User, name string) error {
	if user == nil || !user.HasPermission(name) {
		return fmt.Errorf("%w: missing permission %s", ErrAccessDenied, name)
	}
	return nil
}
