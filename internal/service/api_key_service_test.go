package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/repository"
	"thirtyday/internal/testutil"
	"thirtyday/internal/validation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAPIKeyService(t *testing.T) (*APIKeyService, *models.User, *time.Time) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	svc := NewAPIKeyService(repository.NewAPIKeyRepository(db))
	svc.cost = bcrypt.MinCost
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, testutil.CreateUser(t, db, "ivy"), &now
}

func TestAPIKeyService_CreateAndAuthenticate(t *testing.T) {
	svc, owner, now := newTestAPIKeyService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAPIKeyInput{UserID: owner.ID, Name: "CI runner"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Secret, APIKeyPrefix+"_"+created.Key.Prefix+"_"))
	assert.Equal(t, models.Scopes{models.ScopeRead}, created.Key.Scopes)
	require.NotNil(t, created.Key.ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), *created.Key.ExpiresAt)
	assert.NotContains(t, created.Key.HashedSecret, strings.Split(created.Secret, "_")[2])

	key, err := svc.Authenticate(ctx, created.Secret)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, key.UserID)
	require.NotNil(t, key.LastUsedAt)

	keys, err := svc.List(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].LastUsedAt)
}

func TestAPIKeyService_AuthenticateRejects(t *testing.T) {
	svc, owner, now := newTestAPIKeyService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAPIKeyInput{
		UserID:     owner.ID,
		Name:       "short lived",
		Scopes:     []string{"read", "write"},
		Expiration: validation.Expire7Days,
	})
	require.NoError(t, err)

	for _, raw := range []string{
		"",
		"garbage",
		"tdc__secret",
		"xyz_" + created.Key.Prefix + "_abc",
		APIKeyPrefix + "_" + created.Key.Prefix + "_wrongsecret",
		APIKeyPrefix + "_ffffffff_abc",
	} {
		_, err := svc.Authenticate(ctx, raw)
		assert.ErrorIs(t, err, models.ErrUnauthorized, raw)
	}

	*now = now.Add(8 * 24 * time.Hour)
	_, err = svc.Authenticate(ctx, created.Secret)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAPIKeyService_Revoke(t *testing.T) {
	svc, owner, _ := newTestAPIKeyService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAPIKeyInput{UserID: owner.ID, Name: "deploy", Expiration: validation.ExpireNever})
	require.NoError(t, err)
	assert.Nil(t, created.Key.ExpiresAt)

	assert.ErrorIs(t, svc.Revoke(ctx, uuid.New(), created.Key.ID), models.ErrNotAuthorized)
	require.NoError(t, svc.Revoke(ctx, owner.ID, created.Key.ID))
	assert.ErrorIs(t, svc.Revoke(ctx, owner.ID, created.Key.ID), models.ErrInvalidState)

	_, err = svc.Authenticate(ctx, created.Secret)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAPIKeyService_CreateValidation(t *testing.T) {
	svc, owner, _ := newTestAPIKeyService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAPIKeyInput{UserID: owner.ID, Name: "x"})
	assertValidationError(t, err)

	_, err = svc.Create(ctx, CreateAPIKeyInput{UserID: owner.ID, Name: "ok", Scopes: []string{"root"}})
	assertValidationError(t, err)

	_, err = svc.Create(ctx, CreateAPIKeyInput{UserID: owner.ID, Name: "ok", Expiration: "2weeks"})
	assertValidationError(t, err)
}
