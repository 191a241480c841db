package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-market-auth/app/token"
)

var (
	ErrMalformedCredential = token.ErrMalformedCredential
	ErrExpiredCredential   = token.ErrExpiredCredential
	ErrCredentialRejected  = errors.New("credential rejected")
	ErrIdentityNotFound    = errors.New("user not found")
	ErrDuplicateIdentity   = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccessDenied        = errors.New("access denied")
	ErrWeakPassword        = errors.New("password does not meet policy requirements")
)
