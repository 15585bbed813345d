package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

type userStoreStub struct {
	users       map[string]*models.User
	lastLoginID int64
}

func (s *userStoreStub) GetByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *userStoreStub) GetByID(_ context.Context, id int64) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) TouchLastLogin(_ context.Context, id int64) error {
	s.lastLoginID = id
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *userStoreStub, *auditStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	store := &userStoreStub{users: map[string]*models.User{
		"reviewer@example.org": {
			ID: 2, Email: "reviewer@example.org", FullName: "Reviewer Two",
			Role: models.RoleReviewer, PasswordHash: string(hash), Active: true,
		},
		"dormant@example.org": {
			ID: 3, Email: "dormant@example.org", FullName: "Dormant Three",
			Role: models.RoleEncoder, PasswordHash: string(hash), Active: false,
		},
	}}
	audit := &auditStub{}
	svc := NewAuthService(store, audit, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sitio-profile-api",
	})
	return svc, store, audit
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc, store, audit := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "reviewer@example.org",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleReviewer, resp.Role)
	assert.Equal(t, int64(2), resp.User.ID)
	assert.Equal(t, int64(2), store.lastLoginID)
	assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), claims.UserID)
	assert.Equal(t, "Reviewer Two", claims.FullName)
	assert.Equal(t, models.Actor{ID: 2, Name: "Reviewer Two"}, claims.Actor())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "reviewer@example.org",
		Password: "wrong",
	})
	requireErrorCode(t, err, appErrors.ErrInvalidCredentials.Code)

	_, err = svc.Login(context.Background(), dto.LoginRequest{
		Email:    "nobody@example.org",
		Password: "correct-horse",
	})
	requireErrorCode(t, err, appErrors.ErrInvalidCredentials.Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "dormant@example.org",
		Password: "correct-horse",
	})
	requireErrorCode(t, err, appErrors.ErrInactiveAccount.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "not-an-email", Password: "x"})
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email:    "reviewer@example.org",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	requireErrorCode(t, err, appErrors.ErrUnauthorized.Code)
}
