package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/surveyhub/internal/models"
)

type AuthStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	AddUser(ctx context.Context, u *models.User) (*models.User, error)
	GetDepartment(ctx context.Context, id int64) (*models.Department, error)
	AddDepartment(ctx context.Context, d *models.Department) (*models.Department, error)
	ListDepartments(ctx context.Context) ([]*models.Department, error)
}

type TokenSigner func(uid int64, role, username string, ttl time.Duration) (string, error)

// Assigner hands a new member the surveys its department already received.
type Assigner func(ctx context.Context, userID, departmentID int64) (int, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	signToken TokenSigner
	tokenTTL  time.Duration
	assign    Assigner
}

type AuthResult struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type NewUser struct {
	Username     string
	Password     string
	DisplayName  string
	Role         string
	DepartmentID int64
}

func NewAuthService(store AuthStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		signToken: signer,
		tokenTTL:  7 * 24 * time.Hour,
	}
}

// Register creates a respondent account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, in NewUser) (*AuthResult, error) {
	in.Role = models.RoleUser
	u, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// CreateUser lets an administrator create accounts of any role.
func (s *AuthService) CreateUser(ctx context.Context, actor Actor, in NewUser) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	return s.createUser(ctx, in)
}

// WithAssigner installs the hook run after every account creation.
func (s *AuthService) WithAssigner(a Assigner) *AuthService {
	s.assign = a
	return s
}

func (s *AuthService) createUser(ctx context.Context, in NewUser) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, NewInvalidError("username/password required")
	}
	if in.Role != models.RoleAdmin && in.Role != models.RoleUser {
		return nil, NewInvalidError("unknown role")
	}
	existing, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("username exists")
	}
	if in.DepartmentID != 0 {
		d, err := s.store.GetDepartment(ctx, in.DepartmentID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, NewNotFoundError("department not found")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u, err := s.store.AddUser(ctx, &models.User{
		Username:     username,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PassHash:     hash,
		Role:         in.Role,
		DepartmentID: in.DepartmentID,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if s.assign != nil && u.DepartmentID != 0 {
		if _, err := s.assign(ctx, u.ID, u.DepartmentID); err != nil {
			return nil, fmt.Errorf("assign department surveys: %w", err)
		}
	}
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("username/password required")
	}
	u, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *models.User) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Role, u.Username, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Role: u.Role}, nil
}

func (s *AuthService) CreateDepartment(ctx context.Context, actor Actor, name string) (*models.Department, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	return s.store.AddDepartment(ctx, &models.Department{Name: name})
}

func (s *AuthService) ListDepartments(ctx context.Context) ([]*models.Department, error) {
	return s.store.ListDepartments(ctx)
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
