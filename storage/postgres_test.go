package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/collab"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/domain"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/migrations"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/storage"
)

var repo *storage.PostgresRepo

func TestMain(m *testing.M) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine3.22",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testusername"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	if err := migrations.Migrate(connString); err != nil {
		panic(err)
	}

	repo, err = storage.NewPostgresRepo(ctx, connString)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	// Cleanup
	repo.Close()
	postgresContainer.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresRepoUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUser", func(t *testing.T) {
		id, err := repo.CreateUser(ctx, "dhairya", "hashed_secret")
		assert.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("CreateUser_Duplicate", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, "dhairya", "new_hash")
		assert.ErrorIs(t, err, domain.ErrDuplicateUsername)
	})

	t.Run("GetUserByUsername", func(t *testing.T) {
		user, err := repo.GetUserByUsername(ctx, "dhairya")
		assert.NoError(t, err)
		assert.Equal(t, "dhairya", user.Username)
		assert.Equal(t, "hashed_secret", user.PasswordHash)
		assert.NotEmpty(t, user.Id)
	})

	t.Run("GetUserByUsername_NotFound", func(t *testing.T) {
		_, err := repo.GetUserByUsername(ctx, "ghost_user")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("GetUserById", func(t *testing.T) {
		id, err := repo.CreateUser(ctx, "tester2", "hash2")
		require.NoError(t, err)

		user, err := repo.GetUserById(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, "hash2", user.PasswordHash)
		assert.Equal(t, "tester2", user.Username)
	})

	t.Run("GetUserById_NotFound", func(t *testing.T) {
		_, err := repo.GetUserById(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestPostgresRepoRooms(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadRoom_NeverFlushed", func(t *testing.T) {
		_, err := repo.LoadRoom(ctx, "never-flushed")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("SaveRoomDocument_RoundTrip", func(t *testing.T) {
		doc := collab.NewDocument()
		require.NoError(t, doc.SetText("shared buffer"))
		require.NoError(t, doc.SetLanguage("python"))

		err := repo.SaveRoomDocument(ctx, "room-1", doc.EncodeFull(), "python")
		require.NoError(t, err)

		record, err := repo.LoadRoom(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "python", record.Language)

		restored, err := collab.LoadDocument(record.Document)
		require.NoError(t, err)
		text, err := restored.Text()
		require.NoError(t, err)
		assert.Equal(t, "shared buffer", text)
	})

	t.Run("SaveRoomState_UpsertsSameRow", func(t *testing.T) {
		err := repo.SaveRoomState(ctx, "room-1", "stdin text", "program output")
		require.NoError(t, err)

		record, err := repo.LoadRoom(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "stdin text", record.Input)
		assert.Equal(t, "program output", record.Output)
		// The document column survives a state-only upsert.
		assert.NotEmpty(t, record.Document)
		assert.Equal(t, "python", record.Language)
	})

	t.Run("SaveRoomState_CreatesRowWithDefaults", func(t *testing.T) {
		err := repo.SaveRoomState(ctx, "room-2", "only input", "")
		require.NoError(t, err)

		record, err := repo.LoadRoom(ctx, "room-2")
		require.NoError(t, err)
		assert.Equal(t, "only input", record.Input)
		assert.Empty(t, record.Document)
		assert.Equal(t, "javascript", record.Language)
	})

	t.Run("SaveRoomDocument_Overwrite", func(t *testing.T) {
		doc := collab.NewDocument()
		require.NoError(t, doc.SetText("second revision"))

		err := repo.SaveRoomDocument(ctx, "room-1", doc.EncodeFull(), "java")
		require.NoError(t, err)

		record, err := repo.LoadRoom(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "java", record.Language)

		restored, err := collab.LoadDocument(record.Document)
		require.NoError(t, err)
		text, err := restored.Text()
		require.NoError(t, err)
		assert.Equal(t, "second revision", text)
	})
}
