package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagetree/internal/domain"
)

// testDSNEnv - DSN тестовой базы в формате key=value; без него тесты с базой пропускаются
const testDSNEnv = "STORAGETREE_TEST_POSTGRES_DSN"

// newTestPostgres поднимает схему в отдельном search_path и удаляет ее после теста
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDSNEnv)
	}

	admin, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	schema := "storagetree_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec("CREATE SCHEMA " + pq.QuoteIdentifier(schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec("DROP SCHEMA " + pq.QuoteIdentifier(schema) + " CASCADE")
	})

	db, err := sqlx.Connect("postgres", dsn+" search_path="+schema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ddl, err := os.ReadFile("../../migrations/000001_init.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(ddl))
	require.NoError(t, err)

	return NewPostgresStore(db)
}

func createTestUser(t *testing.T, store *PostgresStore, username string, diskSpace int64) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:        uuid.New(),
		Username:  username,
		Role:      domain.RoleUser,
		DiskSpace: diskSpace,
		RootPath:  "/" + username,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: uniqueViolation}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: uniqueViolation})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(assert.AnError))
}

func TestCheckAffected(t *testing.T) {
	assert.NoError(t, checkAffected(driver.RowsAffected(1), "folder"))
	assert.ErrorIs(t, checkAffected(driver.RowsAffected(0), "folder"), domain.ErrNotFound)
}

func TestPostgresUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgres(t)

	bob := createTestUser(t, store, "bob", 100)
	createTestUser(t, store, "alice", 100)

	dup := &domain.User{ID: uuid.New(), Username: "bob", Role: domain.RoleUser, RootPath: "/bob"}
	err := store.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	got, err := store.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.DiskSpace)

	_, err = store.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresAddUsedSpace(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgres(t)
	user := createTestUser(t, store, "bob", 100)

	got, err := store.AddUsedSpace(ctx, user.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.UsedSpace)

	_, err = store.AddUsedSpace(ctx, user.ID, 41)
	assert.ErrorIs(t, err, domain.ErrInsufficientQuota)

	got, err = store.AddUsedSpace(ctx, user.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.UsedSpace, "filling the quota exactly is allowed")

	got, err = store.AddUsedSpace(ctx, user.ID, -500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UsedSpace, "negative delta clamps at zero")

	_, err = store.AddUsedSpace(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("concurrent reservations never exceed the limit", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.AddUsedSpace(ctx, user.ID, 10)
			}()
		}
		wg.Wait()

		got, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.UsedSpace)
	})
}

func TestPostgresSetDiskSpace(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgres(t)
	user := createTestUser(t, store, "bob", 100)

	_, err := store.AddUsedSpace(ctx, user.ID, 50)
	require.NoError(t, err)

	_, err = store.SetDiskSpace(ctx, user.ID, 49)
	assert.ErrorIs(t, err, domain.ErrBelowUsedSpace)

	got, err := store.SetDiskSpace(ctx, user.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.DiskSpace)

	_, err = store.SetDiskSpace(ctx, uuid.New(), 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err = store.SetUsedSpace(ctx, user.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UsedSpace)
}

func TestPostgresTree(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgres(t)
	bob := createTestUser(t, store, "bob", 1000)
	alice := createTestUser(t, store, "alice", 1000)

	docs := &domain.Folder{ID: uuid.New(), Name: "docs", OwnerID: bob.ID, Path: "/bob/docs"}
	require.NoError(t, store.CreateFolder(ctx, docs))

	dup := &domain.Folder{ID: uuid.New(), Name: "docs", OwnerID: bob.ID, Path: "/bob/docs"}
	assert.ErrorIs(t, store.CreateFolder(ctx, dup), domain.ErrAlreadyExists)

	file := &domain.File{
		ID:           uuid.New(),
		Filename:     "a.txt",
		OriginalName: "a.txt",
		Path:         "/bob/docs/a.txt",
		SizeBytes:    12,
		MIMEType:     "text/plain",
		OwnerID:      bob.ID,
		FolderID:     &docs.ID,
	}
	require.NoError(t, store.CreateFile(ctx, file))
	dupFile := *file
	dupFile.ID = uuid.New()
	assert.ErrorIs(t, store.CreateFile(ctx, &dupFile), domain.ErrAlreadyExists)

	listing, err := store.ListChildren(ctx, &docs.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, docs.ID, listing.Folder.ID)

	root, err := store.ListChildren(ctx, nil, bob.ID)
	require.NoError(t, err)
	require.Len(t, root.Folders, 1)
	assert.Empty(t, root.Files)

	node, err := store.FindNode(ctx, file.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindFile, node.NodeKind())

	_, err = store.FindNode(ctx, file.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "foreign nodes are invisible")

	exists, err := store.PathExists(ctx, bob.ID, "/bob/docs/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.PathExists(ctx, alice.ID, "/bob/docs/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	named, err := store.FindFoldersByName(ctx, bob.ID, "docs")
	require.NoError(t, err)
	assert.Len(t, named, 1)

	sum, err := store.SumFileSizes(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), sum)

	require.NoError(t, store.Rename(ctx, domain.KindFile, file.ID, "b.txt"))
	require.NoError(t, store.UpdatePath(ctx, domain.KindFile, file.ID, "/bob/b.txt"))
	require.NoError(t, store.UpdateParent(ctx, domain.KindFile, file.ID, nil))
	moved, err := store.FindFile(ctx, file.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", moved.Filename)
	assert.Equal(t, "/bob/b.txt", moved.Path)
	assert.Nil(t, moved.FolderID)

	require.NoError(t, store.DeleteNode(ctx, domain.KindFile, file.ID))
	assert.ErrorIs(t, store.DeleteNode(ctx, domain.KindFile, file.ID), domain.ErrNotFound)
	assert.ErrorIs(t, store.UpdatePath(ctx, domain.KindFolder, uuid.New(), "/bob/x"), domain.ErrNotFound)
}

func TestPostgresInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgres(t)
	bob := createTestUser(t, store, "bob", 1000)

	folder := &domain.Folder{ID: uuid.New(), Name: "docs", OwnerID: bob.ID, Path: "/bob/docs"}
	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateFolder(ctx, folder); err != nil {
			return err
		}
		if _, err := tx.AddUsedSpace(ctx, bob.ID, 10); err != nil {
			return err
		}
		// вложенный вызов присоединяется к внешней транзакции
		return tx.InTx(ctx, func(inner Store) error {
			_, err := inner.AddUsedSpace(ctx, bob.ID, 5000)
			return err
		})
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientQuota)

	_, err = store.FindFolder(ctx, folder.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := store.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UsedSpace)
}
