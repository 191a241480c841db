package http

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,printascii,max=255"`
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"required,min=3,max=64,username"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RestoreRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type NewPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ListUsersQuery struct {
	Limit  int `query:"limit" validate:"gte=0,lte=500"`
	Offset int `query:"offset" validate:"gte=0"`
}

type VerifyTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
	Permission  string `json:"permission"`
}
