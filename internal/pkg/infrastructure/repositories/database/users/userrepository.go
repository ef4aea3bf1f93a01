package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
)

type User struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name     string
	Email    string `gorm:"uniqueIndex"`
	Password string
	Role     string
	Avatar   string
}

//go:generate moq -rm -out userrepository_mock.go . UserRepository

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, userID uint) (User, error)
	Save(ctx context.Context, user *User) error
}

var ErrUserNotFound = fmt.Errorf("user not found")
var ErrUserExists = fmt.Errorf("user already exists")

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(connect ConnectorFunc) (UserRepository, error) {
	impl, _, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&User{})
	if err != nil {
		return nil, err
	}

	return &userRepository{db: impl}, nil
}

func (r *userRepository) Create(ctx context.Context, user *User) error {
	user.Email = normalize(user.Email)

	_, err := r.GetByEmail(ctx, user.Email)
	if err == nil {
		return ErrUserExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.first(ctx, &User{Email: normalize(email)})
}

func (r *userRepository) GetByID(ctx context.Context, userID uint) (User, error) {
	if userID == 0 {
		return User{}, ErrUserNotFound
	}
	return r.first(ctx, &User{ID: userID})
}

func (r *userRepository) Save(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) first(ctx context.Context, cond *User) (User, error) {
	u := User{}

	err := r.db.WithContext(ctx).Where(cond).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return u, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
