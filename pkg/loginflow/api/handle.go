package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/loginflow"
)

// Handler exposes the LoginOrchestrator over HTTP.
type Handler struct {
	svc          *loginflow.LoginOrchestrator
	loginLimiter func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithLoginLimiter wraps the credential-checking routes with mw.
func WithLoginLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.loginLimiter = mw
	}
}

func NewHandler(svc *loginflow.LoginOrchestrator, opts ...Option) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the public routes and, behind tokenAuth, the
// self-service routes.
func (h *Handler) RegisterRoutes(r chi.Router, tokenAuth *jwtauth.JWTAuth) {
	r.Post("/create", h.CreateUser)
	r.Get("/validateEmail", h.ValidateEmail)
	r.Post("/recoverPassword", h.RecoverPassword)
	r.Post("/webauthn/authenticate/start", h.StartWebAuthnAuthentication)

	r.Group(func(r chi.Router) {
		if h.loginLimiter != nil {
			r.Use(h.loginLimiter)
		}
		r.Post("/createAuthenticate", h.CreateAuthenticate)
		r.Post("/authenticate", h.Authenticate)
		r.Post("/login", h.Login)
		r.Post("/login/2fa", h.Validate2FA)
		r.Post("/login/{provider}", h.SocialLogin)
		r.Post("/login/{provider}/2fa", h.SocialLogin2FA)
		r.Post("/google/2FAuth/qrCode", h.GenerateQRCode)
		r.Post("/google/2FAuth/validate", h.Validate2FA)
		r.Post("/webauthn/authenticate/finish", h.FinishWebAuthnAuthentication)
	})

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Put("/update", h.UpdateUser)
		r.Post("/webauthn/register/start", h.StartWebAuthnRegistration)
		r.Post("/webauthn/register/finish", h.FinishWebAuthnRegistration)
		r.Post("/2fa/settings", h.Update2FASettings)
		r.Post("/delete", h.DeleteUser)
		r.Get("/list", h.ListUsers)
		r.Get("/by-email", h.GetUserByEmail)
	})
}

// Router returns the handler mounted under /users.
func (h *Handler) Router(tokenAuth *jwtauth.JWTAuth) chi.Router {
	r := chi.NewRouter()
	r.Route("/users", func(r chi.Router) {
		h.RegisterRoutes(r, tokenAuth)
	})
	return r
}

// CreateUser handles POST /users/create
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	acct, err := h.svc.CreateUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUser(w, r, acct)
}

// CreateAuthenticate handles POST /users/createAuthenticate
func (h *Handler) CreateAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.CreateAuthenticate(r.Context(), req.Name, req.Email, req.Password)
	writeLoginResult(w, r, result, err)
}

// Authenticate handles POST /users/authenticate
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	writeLoginResult(w, r, result, err)
}

// Login handles POST /users/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	writeLoginResult(w, r, result, err)
}

// Validate2FA handles POST /users/login/2fa and /users/google/2FAuth/validate
func (h *Handler) Validate2FA(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Validate2FACode(r.Context(), req.Email, req.Code)
	writeLoginResult(w, r, result, err)
}

// SocialLogin handles POST /users/login/{provider}
func (h *Handler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	var req SocialLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	result, err := h.svc.LoginWithSocialToken(r.Context(), req.Token, chi.URLParam(r, "provider"))
	writeLoginResult(w, r, result, err)
}

// SocialLogin2FA handles POST /users/login/{provider}/2fa
func (h *Handler) SocialLogin2FA(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ValidateSocialLogin2FA(r.Context(), req.Email, req.Code)
	writeLoginResult(w, r, result, err)
}

// ValidateEmail handles GET /users/validateEmail?email=&code=
func (h *Handler) ValidateEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	acct, err := h.svc.ValidateEmail(r.Context(), q.Get("email"), q.Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUser(w, r, acct)
}

// RecoverPassword handles POST /users/recoverPassword
func (h *Handler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RecoverPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "A new password has been sent to your e-mail"})
}

// GenerateQRCode handles POST /users/google/2FAuth/qrCode
func (h *Handler) GenerateQRCode(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	png, err := h.svc.GenerateQRCode(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		slog.Error("Failed to write QR code", "err", err)
	}
}

// StartWebAuthnRegistration handles POST /users/webauthn/register/start
func (h *Handler) StartWebAuthnRegistration(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnStartRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.StartWebAuthnRegistration(r.Context(), callerFromContext(r), req.Email, originOf(r, req.Origin))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// FinishWebAuthnRegistration handles POST /users/webauthn/register/finish
func (h *Handler) FinishWebAuthnRegistration(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnFinishRequest
	if !h.decode(w, r, &req) {
		return
	}
	cred, err := h.svc.FinishWebAuthnRegistration(r.Context(), callerFromContext(r), req.Email, req.Response, originOf(r, req.Origin), req.DeviceName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var resp CredentialResponse
	if err := copier.Copy(&resp, &cred); err != nil {
		writeError(w, r, errors.InternalWrap(err, "failed to map credential"))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// StartWebAuthnAuthentication handles POST /users/webauthn/authenticate/start
func (h *Handler) StartWebAuthnAuthentication(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnStartRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.StartWebAuthnAuthentication(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// FinishWebAuthnAuthentication handles POST /users/webauthn/authenticate/finish
func (h *Handler) FinishWebAuthnAuthentication(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnFinishRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.FinishWebAuthnAuthentication(r.Context(), req.Email, req.Response)
	writeLoginResult(w, r, result, err)
}

// UpdateUser handles PUT /users/update
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	var update loginflow.UpdateUserRequest
	if err := copier.Copy(&update, &req); err != nil {
		writeError(w, r, errors.InternalWrap(err, "failed to map update request"))
		return
	}
	result, err := h.svc.UpdateUser(r.Context(), callerFromContext(r), update)
	writeLoginResult(w, r, result, err)
}

// Update2FASettings handles POST /users/2fa/settings
func (h *Handler) Update2FASettings(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	acct, err := h.svc.Update2FASettings(r.Context(), callerFromContext(r), req.Email, req.Require2FAForBasicLogin, req.Require2FAForSocialLogin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUser(w, r, acct)
}

// DeleteUser handles POST /users/delete
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteUser(r.Context(), callerFromContext(r), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /users/list
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListUsers(r.Context(), callerFromContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]UserResponse, 0, len(accounts))
	for _, acct := range accounts {
		user, err := toUserResponse(acct)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp = append(resp, user)
	}
	render.JSON(w, r, resp)
}

// GetUserByEmail handles GET /users/by-email?email=
func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.GetUser(r.Context(), callerFromContext(r), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUser(w, r, acct)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeRequest(r, v); err != nil {
		slog.Warn("Failed to decode request body", "path", r.URL.Path, "err", err)
		writeError(w, r, errors.InvalidInput("invalid request body"))
		return false
	}
	return true
}

func toUserResponse(acct account.Account) (UserResponse, error) {
	var resp UserResponse
	if err := copier.Copy(&resp, &acct); err != nil {
		return UserResponse{}, errors.InternalWrap(err, "failed to map account")
	}
	resp.Roles = acct.RoleList()
	return resp, nil
}

func writeUser(w http.ResponseWriter, r *http.Request, acct account.Account) {
	resp, err := toUserResponse(acct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func writeLoginResult(w http.ResponseWriter, r *http.Request, result loginflow.LoginResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := LoginResponse{
		Requires2FA: result.Requires2FA,
		Channel:     string(result.Channel),
		Message:     result.Message,
	}
	if !result.Requires2FA {
		user, err := toUserResponse(result.Account)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Authentication = &AuthenticationResponse{
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
			User:      user,
		}
	}
	render.JSON(w, r, resp)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := errors.MapErrorCodeToHTTPStatus(code)
	message := errors.GetMessage(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "err", err)
		message = "internal server error"
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ErrorResponse{Code: string(code), Message: message})
}

// callerFromContext reads the principal set by the jwtauth middleware.
func callerFromContext(r *http.Request) loginflow.Caller {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return loginflow.Caller{}
	}
	caller := loginflow.Caller{}
	if email, ok := claims["email"].(string); ok {
		caller.Email = email
	}
	switch groups := claims["groups"].(type) {
	case []interface{}:
		for _, g := range groups {
			if s, ok := g.(string); ok {
				caller.Roles = append(caller.Roles, s)
			}
		}
	case []string:
		caller.Roles = groups
	}
	return caller
}

func originOf(r *http.Request, origin string) string {
	if origin != "" {
		return origin
	}
	return r.Header.Get("Origin")
}
