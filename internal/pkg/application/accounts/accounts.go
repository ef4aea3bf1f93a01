// Package accounts registers researchers and issues their access tokens.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/mailer"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/users"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

var tracer = otel.Tracer("aquasmart/accounts")

const (
	DefaultRole = "Researcher"
	AdminRole   = "Admin"

	LoginTTL = 2 * time.Hour
	ResetTTL = 15 * time.Minute

	ClaimUserID  = "id"
	ClaimEmail   = "email"
	ClaimRole    = "role"
	ClaimPurpose = "purpose"

	purposeReset = "reset"
)

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrUserExists        = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrMailNotConfigured = errors.New("mail is not configured")
	ErrAvatarTooLarge    = errors.New("avatar too large")
	ErrNotAnImage        = errors.New("avatar is not an image")
)

type Config struct {
	Secret         string
	ResetURL       string
	UploadsDir     string
	UploadsURL     string
	MaxAvatarBytes int64
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Role     string
	Avatar   *Upload
}

type Upload struct {
	Filename string
	Content  io.Reader
}

// Session is what a successful register or login returns to the client.
type Session struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    types.User `json:"user"`
}

//go:generate moq -rm -out accounts_mock.go . Accounts

type Accounts interface {
	Register(ctx context.Context, reg Registration) (Session, error)
	Login(ctx context.Context, email, password string) (Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	UpdateProfile(ctx context.Context, userID uint, name string, avatar *Upload) (types.User, error)
	ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error

	TokenAuth() *jwtauth.JWTAuth
}

type accounts struct {
	repo      users.UserRepository
	mail      mailer.Mailer
	tokenAuth *jwtauth.JWTAuth
	cfg       Config
	now       func() time.Time
}

func New(repo users.UserRepository, mail mailer.Mailer, cfg Config) Accounts {
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}
	if cfg.UploadsURL == "" {
		cfg.UploadsURL = "/uploads"
	}
	if cfg.ResetURL == "" {
		cfg.ResetURL = "http://localhost:5173/reset-password"
	}
	if cfg.MaxAvatarBytes <= 0 {
		cfg.MaxAvatarBytes = 2 * 1024 * 1024
	}

	return &accounts{
		repo:      repo,
		mail:      mail,
		tokenAuth: NewTokenAuth(cfg.Secret),
		cfg:       cfg,
		now:       time.Now,
	}
}

func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

func (a *accounts) TokenAuth() *jwtauth.JWTAuth {
	return a.tokenAuth
}

func (a *accounts) Register(ctx context.Context, reg Registration) (Session, error) {
	var err error
	ctx, span := tracer.Start(ctx, "register")
	defer span.End()

	if strings.TrimSpace(reg.Name) == "" || strings.TrimSpace(reg.Email) == "" || reg.Password == "" {
		return Session{}, ErrMissingFields
	}

	if _, err = a.repo.GetByEmail(ctx, reg.Email); err == nil {
		return Session{}, ErrUserExists
	} else if !errors.Is(err, users.ErrUserNotFound) {
		return Session{}, err
	}

	hash, err := hashPassword(reg.Password)
	if err != nil {
		return Session{}, err
	}

	u := users.User{
		Name:     strings.TrimSpace(reg.Name),
		Email:    reg.Email,
		Password: hash,
		Role:     reg.Role,
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}

	if reg.Avatar != nil {
		u.Avatar, err = a.storeAvatar(reg.Avatar)
		if err != nil {
			return Session{}, err
		}
	}

	err = a.repo.Create(ctx, &u)
	if err != nil {
		if errors.Is(err, users.ErrUserExists) {
			return Session{}, ErrUserExists
		}
		return Session{}, err
	}

	token, err := a.loginToken(u)
	if err != nil {
		return Session{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("email", u.Email).Msg("user registered")

	return Session{Message: "User registered successfully", Token: token, User: MapUser(u)}, nil
}

func (a *accounts) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, ErrMissingFields
	}

	u, err := a.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return Session{}, ErrUserNotFound
		}
		return Session{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return Session{}, ErrInvalidPassword
	}

	token, err := a.loginToken(u)
	if err != nil {
		return Session{}, err
	}

	return Session{Message: "Login successful", Token: token, User: MapUser(u)}, nil
}

// ForgotPassword mails a reset link with a short lived token to the user.
func (a *accounts) ForgotPassword(ctx context.Context, email string) error {
	var err error
	ctx, span := tracer.Start(ctx, "forgot-password")
	defer span.End()

	u, err := a.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	claims := map[string]any{ClaimUserID: u.ID, ClaimPurpose: purposeReset}
	jwtauth.SetExpiry(claims, a.now().Add(ResetTTL))

	_, token, err := a.tokenAuth.Encode(claims)
	if err != nil {
		return err
	}

	err = a.mail.Send(ctx, mailer.Message{
		To:      u.Email,
		Subject: "Password Reset Request",
		HTML:    resetMail(a.cfg.ResetURL + "?token=" + url.QueryEscape(token)),
	})
	if errors.Is(err, mailer.ErrNotConfigured) {
		return ErrMailNotConfigured
	}

	return err
}

func (a *accounts) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrInvalidToken
	}

	t, err := jwtauth.VerifyToken(a.tokenAuth, token)
	if err != nil {
		return ErrInvalidToken
	}

	claims, err := t.AsMap(ctx)
	if err != nil || claims[ClaimPurpose] != purposeReset {
		return ErrInvalidToken
	}

	userID, ok := UserID(claims)
	if !ok {
		return ErrInvalidToken
	}

	u, err := a.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrInvalidToken
	}

	u.Password, err = hashPassword(newPassword)
	if err != nil {
		return err
	}

	return a.repo.Save(ctx, &u)
}

func (a *accounts) UpdateProfile(ctx context.Context, userID uint, name string, avatar *Upload) (types.User, error) {
	u, err := a.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, err
	}

	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}

	if avatar != nil {
		u.Avatar, err = a.storeAvatar(avatar)
		if err != nil {
			return types.User{}, err
		}
	}

	err = a.repo.Save(ctx, &u)
	if err != nil {
		return types.User{}, err
	}

	return MapUser(u), nil
}

func (a *accounts) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return ErrMissingFields
	}

	u, err := a.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(currentPassword)) != nil {
		return ErrInvalidPassword
	}

	u.Password, err = hashPassword(newPassword)
	if err != nil {
		return err
	}

	return a.repo.Save(ctx, &u)
}

func (a *accounts) loginToken(u users.User) (string, error) {
	claims := map[string]any{ClaimUserID: u.ID, ClaimEmail: u.Email, ClaimRole: u.Role}
	jwtauth.SetExpiry(claims, a.now().Add(LoginTTL))

	_, token, err := a.tokenAuth.Encode(claims)
	return token, err
}

func (a *accounts) storeAvatar(upload *Upload) (string, error) {
	content, err := io.ReadAll(io.LimitReader(upload.Content, a.cfg.MaxAvatarBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(content)) > a.cfg.MaxAvatarBytes {
		return "", ErrAvatarTooLarge
	}
	if !strings.HasPrefix(http.DetectContentType(content), "image/") {
		return "", ErrNotAnImage
	}

	if err = os.MkdirAll(a.cfg.UploadsDir, 0755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d-%s%s", a.now().UnixMilli(), uuid.NewString()[:8], strings.ToLower(filepath.Ext(upload.Filename)))
	if err = os.WriteFile(filepath.Join(a.cfg.UploadsDir, name), content, 0644); err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}

	return strings.TrimSuffix(a.cfg.UploadsURL, "/") + "/" + name, nil
}

// UserID reads the user id claim. Numeric claims decode as float64.
func UserID(claims map[string]any) (uint, bool) {
	switch id := claims[ClaimUserID].(type) {
	case float64:
		if id > 0 {
			return uint(id), true
		}
	case int64:
		if id > 0 {
			return uint(id), true
		}
	case uint:
		return id, id > 0
	}
	return 0, false
}

func IsResetToken(claims map[string]any) bool {
	return claims[ClaimPurpose] == purposeReset
}

func MapUser(u users.User) types.User {
	return types.User{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
	}
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func resetMail(link string) string {
	return `<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
  <h2 style="color: #0284c7;">AquaSmart Password Reset</h2>
  <p>You requested a password reset for your research account.</p>
  <p>Click the button below to set a new password:</p>
  <a href="` + link + `" style="background-color: #0284c7; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block; margin-top: 10px;">Reset Password</a>
  <p style="margin-top: 20px; font-size: 12px; color: #666;">Link expires in 15 minutes.</p>
</div>`
}
