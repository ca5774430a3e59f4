package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagetree/internal/domain"
)

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	admin := domain.Principal{ID: uuid.New(), Username: "root", Role: domain.RoleAdmin}

	user, err := e.admin.CreateUser(ctx, admin, CreateUserRequest{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, domain.DefaultDiskSpace, user.DiskSpace)
	assert.Equal(t, int64(0), user.UsedSpace)
	assert.Equal(t, "/alice", user.RootPath)
	assert.True(t, e.exists(t, "/alice"))

	_, err = e.admin.CreateUser(ctx, user.Principal(), CreateUserRequest{Username: "mallory"})
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err))
	assert.False(t, e.exists(t, "/mallory"))

	_, err = e.admin.CreateUser(ctx, admin, CreateUserRequest{Username: "alice"})
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	_, err = e.admin.CreateUser(ctx, admin, CreateUserRequest{Username: "../etc"})
	assert.Equal(t, domain.CodeInvalidName, domain.CodeOf(err))

	_, err = e.admin.CreateUser(ctx, admin, CreateUserRequest{Username: "carol", Role: "root"})
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
	assert.False(t, e.exists(t, "/carol"))

	boss, err := e.admin.CreateUser(ctx, admin, CreateUserRequest{Username: "boss", Role: domain.RoleAdmin, DiskSpace: 10})
	require.NoError(t, err)
	assert.True(t, boss.Principal().IsAdmin())
	assert.Equal(t, int64(10), boss.DiskSpace)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	admin := domain.Principal{ID: uuid.New(), Username: "root", Role: domain.RoleAdmin}
	bob := e.newUser(t, "bob", 100)
	e.newUser(t, "alice", 100)

	users, err := e.admin.ListUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	_, err = e.admin.ListUsers(ctx, bob)
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err))
}
