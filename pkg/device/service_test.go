package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryBackends(t *testing.T) map[string]RegistryRepository {
	fileRepo, err := NewFileRegistryRepository(t.TempDir())
	require.NoError(t, err)
	return map[string]RegistryRepository{
		"inmem": NewInMemRegistryRepository(),
		"file":  fileRepo,
	}
}

func record(id string) DeviceRecord {
	return DeviceRecord{
		ID:        id,
		UserAgent: desktopUA,
		IP:        "192.0.2.1",
		FirstSeen: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRegistryService(t *testing.T) {
	for name, repo := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewRegistryService(repo)
			ctx := context.Background()
			user := "user-" + name

			t.Run("empty registry", func(t *testing.T) {
				records, err := svc.List(ctx, user)
				require.NoError(t, err)
				assert.Empty(t, records)

				count, err := svc.Count(ctx, user)
				require.NoError(t, err)
				assert.Zero(t, count)
			})

			t.Run("approve appends in order", func(t *testing.T) {
				for _, id := range []string{"d1", "d2"} {
					appended, err := svc.Approve(ctx, user, record(id), 3)
					require.NoError(t, err)
					assert.True(t, appended)
				}

				records, err := svc.List(ctx, user)
				require.NoError(t, err)
				require.Len(t, records, 2)
				assert.Equal(t, "d1", records[0].ID)
				assert.Equal(t, "d2", records[1].ID)
				assert.Equal(t, StatusApproved, records[0].Status)
				assert.Equal(t, DeviceClassDesktop, records[0].DeviceClass)
			})

			t.Run("approve known device is a no-op", func(t *testing.T) {
				appended, err := svc.Approve(ctx, user, record("d1"), 3)
				require.NoError(t, err)
				assert.False(t, appended)

				count, err := svc.Count(ctx, user)
				require.NoError(t, err)
				assert.Equal(t, 2, count)
			})

			t.Run("approve refuses past limit", func(t *testing.T) {
				_, err := svc.Approve(ctx, user, record("d3"), 3)
				require.NoError(t, err)

				_, err = svc.Approve(ctx, user, record("d4"), 3)
				assert.ErrorIs(t, err, ErrRegistryFull)

				count, err := svc.Count(ctx, user)
				require.NoError(t, err)
				assert.Equal(t, 3, count)
			})

			t.Run("contains", func(t *testing.T) {
				ok, err := svc.Contains(ctx, user, "d2")
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = svc.Contains(ctx, user, "d4")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("remove is idempotent", func(t *testing.T) {
				removed, err := svc.Remove(ctx, user, "d2")
				require.NoError(t, err)
				assert.True(t, removed)

				removed, err = svc.Remove(ctx, user, "d2")
				require.NoError(t, err)
				assert.False(t, removed)

				records, err := svc.List(ctx, user)
				require.NoError(t, err)
				require.Len(t, records, 2)
				assert.Equal(t, "d1", records[0].ID)
				assert.Equal(t, "d3", records[1].ID)
			})

			t.Run("remove from empty registry", func(t *testing.T) {
				removed, err := svc.Remove(ctx, "nobody", "d1")
				require.NoError(t, err)
				assert.False(t, removed)
			})

			t.Run("reset", func(t *testing.T) {
				require.NoError(t, svc.Reset(ctx, user))
				count, err := svc.Count(ctx, user)
				require.NoError(t, err)
				assert.Zero(t, count)
			})

			t.Run("purge", func(t *testing.T) {
				_, err := svc.Approve(ctx, "a", record("x"), 0)
				require.NoError(t, err)
				_, err = svc.Approve(ctx, "b", record("y"), 0)
				require.NoError(t, err)

				require.NoError(t, svc.Purge(ctx))
				for _, u := range []string{"a", "b"} {
					count, err := svc.Count(ctx, u)
					require.NoError(t, err)
					assert.Zero(t, count)
				}
			})
		})
	}
}

func TestInMemRegistryRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemRegistryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "u", []DeviceRecord{record("d1")}))
	got, err := repo.Get(ctx, "u")
	require.NoError(t, err)
	got[0].ID = "mutated"

	again, err := repo.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "d1", again[0].ID)
}

func TestNewRegistryRepository(t *testing.T) {
	repo, err := NewRegistryRepository("inmem", RepositoryConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InMemRegistryRepository{}, repo)

	repo, err = NewRegistryRepository("file", RepositoryConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileRegistryRepository{}, repo)

	_, err = NewRegistryRepository("file", RepositoryConfig{})
	assert.ErrorContains(t, err, "dataDir required")

	_, err = NewRegistryRepository("postgres", RepositoryConfig{})
	assert.ErrorContains(t, err, "db required")

	_, err = NewRegistryRepository("mongo", RepositoryConfig{})
	assert.ErrorContains(t, err, "unsupported persistence type")
}
