package api

import "time"

type CreateUserRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type TwoFactorRequest struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

type SocialLoginRequest struct {
	Token string `json:"token" form:"token"`
}

type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

type WebAuthnStartRequest struct {
	Email  string `json:"email" form:"email"`
	Origin string `json:"origin" form:"origin"`
}

type WebAuthnFinishRequest struct {
	Email      string `json:"email" form:"email"`
	Response   string `json:"response" form:"response"`
	Origin     string `json:"origin" form:"origin"`
	DeviceName string `json:"deviceName" form:"deviceName"`
}

type UpdateUserRequest struct {
	Email       string `json:"email" form:"email"`
	Name        string `json:"name" form:"name"`
	NewEmail    string `json:"newEmail" form:"newEmail"`
	Password    string `json:"password" form:"password"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

type TwoFactorSettingsRequest struct {
	Email                    string `json:"email" form:"email"`
	Require2FAForBasicLogin  bool   `json:"require2FAForBasicLogin" form:"require2FAForBasicLogin"`
	Require2FAForSocialLogin bool   `json:"require2FAForSocialLogin" form:"require2FAForSocialLogin"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	Hash                     string   `json:"hash"`
	Name                     string   `json:"name"`
	Email                    string   `json:"email"`
	EmailValid               bool     `json:"emailValid"`
	Roles                    []string `json:"role"`
	UsingTwoFactor           bool     `json:"isUsing2FA"`
	Require2FAForBasicLogin  bool     `json:"require2FAForBasicLogin"`
	Require2FAForSocialLogin bool     `json:"require2FAForSocialLogin"`
}

type AuthenticationResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// LoginResponse carries either an authentication or a second factor prompt.
type LoginResponse struct {
	Authentication *AuthenticationResponse `json:"authentication,omitempty"`
	Requires2FA    bool                    `json:"requires2FA"`
	Channel        string                  `json:"channel,omitempty"`
	Message        string                  `json:"message,omitempty"`
}

type CredentialResponse struct {
	CredentialID string    `json:"credentialId"`
	DeviceName   string    `json:"deviceName"`
	Origin       string    `json:"origin"`
	Counter      uint32    `json:"counter"`
	CreatedAt    time.Time `json:"createdAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
