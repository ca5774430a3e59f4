package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagetree/internal/domain"
)

func TestReserveDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.newUser(t, "bob", 100)

	require.NoError(t, e.quota.Reserve(ctx, u.ID, 100))
	require.NoError(t, e.quota.Reserve(ctx, u.ID, -5))
	assert.Equal(t, int64(0), e.usedSpace(t, u))

	err := e.quota.Reserve(ctx, u.ID, 101)
	assert.Equal(t, domain.CodeInsufficientQuota, domain.CodeOf(err))

	err = e.quota.Reserve(ctx, uuid.New(), 1)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.newUser(t, "bob", 100)

	user, err := e.quota.Commit(ctx, e.store, u.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.UsedSpace)

	_, err = e.quota.Commit(ctx, e.store, u.ID, 71)
	assert.Equal(t, domain.CodeInsufficientQuota, domain.CodeOf(err))

	user, err = e.quota.Commit(ctx, e.store, u.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.UsedSpace)

	user, err = e.quota.Commit(ctx, e.store, u.ID, -30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.UsedSpace)
}

func TestSetLimit(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	admin := domain.Principal{ID: uuid.New(), Username: "root", Role: domain.RoleAdmin}
	u := e.newUser(t, "bob", 100)
	e.upload(t, u, nil, "a.bin", 40)

	tests := []struct {
		name  string
		actor domain.Principal
		limit int64
		code  domain.ErrorCode
	}{
		{"plain user is forbidden", u, 500, domain.CodeForbidden},
		{"negative limit", admin, -1, domain.CodeInvalidArgument},
		{"below used space", admin, 39, domain.CodeBelowUsedSpace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.quota.SetLimit(ctx, tt.actor, u.ID, tt.limit)
			assert.Equal(t, tt.code, domain.CodeOf(err))
		})
	}

	user, err := e.quota.SetLimit(ctx, admin, u.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), user.DiskSpace)

	_, err = e.tree.UploadFile(ctx, u, fileUpload(nil, "b.bin", 1))
	assert.Equal(t, domain.CodeInsufficientQuota, domain.CodeOf(err))

	info, err := e.quota.GetQuotaInfo(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), info.TotalSpace)
	assert.Equal(t, int64(40), info.UsedSpace)
	assert.Equal(t, int64(0), info.AvailableSpace)
	assert.InDelta(t, 100.0, info.UsagePercent, 0.001)
}

func TestRecalculate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	admin := domain.Principal{ID: uuid.New(), Username: "root", Role: domain.RoleAdmin}
	u := e.newUser(t, "bob", 100)
	e.upload(t, u, nil, "a.bin", 25)

	_, err := e.store.SetUsedSpace(ctx, u.ID, 90)
	require.NoError(t, err)

	_, err = e.quota.Recalculate(ctx, u, u.ID)
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err))

	user, err := e.quota.Recalculate(ctx, admin, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), user.UsedSpace)

	_, err = e.quota.Recalculate(ctx, admin, uuid.New())
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}
