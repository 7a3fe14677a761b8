package controllers

import (
	"net/http"
	"time"

	"bankcore/apperrors"
	"bankcore/config"
	"bankcore/middleware"
	"bankcore/models"
	"bankcore/services"

	"github.com/go-playground/validator/v10"
)

// AuthController регистрация, вход и профиль пользователя
type AuthController struct {
	users      *services.UserService
	tokens     *middleware.TokenVerifier
	tokenTTL   time.Duration
	adminEmail string
	validator  *validator.Validate
}

func NewAuthController(users *services.UserService, tokens *middleware.TokenVerifier, cfg *config.Config) *AuthController {
	return &AuthController{
		users:      users,
		tokens:     tokens,
		tokenTTL:   cfg.TokenTTL(),
		adminEmail: cfg.AdminEmail,
		validator: apperrors.NewValidator(),
	}
}

func (c *AuthController) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, expiresAt, err := c.tokens.Issue(user.ID, user.Role, c.tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      services.ToUserResponse(user),
	})
}

// SignUp регистрирует пользователя с ролью NONE и сразу выдает токен
func (c *AuthController) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := c.users.CreateUser(r.Context(), services.CreateUserRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Первичная настройка администратора
	if c.adminEmail != "" && user.Email == c.adminEmail {
		if err := c.users.SetRole(r.Context(), user.ID, models.RoleAdmin); err != nil {
			writeError(w, err)
			return
		}
		user.Role = models.RoleAdmin
	}

	c.respondWithToken(w, http.StatusCreated, user)
}

// SignIn обрабатывает вход пользователя
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := c.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	c.respondWithToken(w, http.StatusOK, user)
}

// Me возвращает профиль текущего пользователя с актуальной ролью
func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := c.users.GetByID(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ToUserResponse(user))
}
