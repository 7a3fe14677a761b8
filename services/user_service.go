package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"
	"bankcore/utils"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	store database.Store
}

// CreateUserRequest данные регистрации
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type UserResponse struct {
	ID    uint        `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

func NewUserService(store database.Store) *UserService {
	return &UserService{store: store}
}

// ToUserResponse скрывает хеш пароля
func ToUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser регистрирует пользователя с ролью NONE
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (user *models.User, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("user.create", start, err) }()

	// Хешируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user = &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hashedPassword),
		Role:         models.RoleNone,
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		if _, err := tx.UserByEmail(user.Email); err == nil {
			return apperrors.New(apperrors.KindConflict, "пользователь с таким email уже существует")
		} else if !errors.Is(err, database.ErrNotFound) {
			return apperrors.Internal(err)
		}
		if err := tx.CreateUser(user); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return apperrors.New(apperrors.KindConflict, "пользователь с таким email уже существует")
			}
			return apperrors.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate проверяет email и пароль
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthenticated("неверный email или пароль")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthenticated("неверный email или пароль")
	}
	return user, nil
}

// FindByEmail ищет пользователя по email (игнорируя регистр и пробелы)
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		user, err = tx.UserByEmail(normalizeEmail(email))
		return storeErr(err, "пользователь не найден")
	})
	return user, err
}

// GetByID ищет пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user *models.User
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		user, err = tx.UserByID(id)
		return storeErr(err, "пользователь не найден")
	})
	return user, err
}

// SetRole назначает роль пользователю; используется при начальной настройке администратора
func (s *UserService) SetRole(ctx context.Context, id uint, role models.Role) error {
	return s.store.Transaction(ctx, func(tx database.Tx) error {
		return storeErr(tx.UpdateUserRole(id, role), "пользователь не найден")
	})
}
