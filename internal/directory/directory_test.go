package directory

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	args := m.Called(ctx, ids)
	hits, _ := args.Get(0).(map[uuid.UUID]*models.Profile)
	return hits, args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, profiles []*models.Profile) error {
	return m.Called(ctx, profiles).Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// countingRepo counts backend profile queries
type countingRepo struct {
	*database.MemoryDB
	calls int
	fail  error
}

func (r *countingRepo) GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error) {
	r.calls++
	if r.fail != nil {
		return nil, r.fail
	}
	return r.MemoryDB.GetProfiles(ctx, ids)
}

func seedUsers(t *testing.T, db *database.MemoryDB, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		u, err := db.CreateUser(context.Background(), uuid.NewString()+"@example.com", "hash", "User", string(rune('A'+i)))
		require.NoError(t, err)
		ids[i] = u.ID
	}
	return ids
}

func TestLookupBatchesWithoutCache(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	ids := seedUsers(t, repo.MemoryDB, 3)
	dir := New(repo, nil)

	unknown := uuid.New()
	got, err := dir.Lookup(context.Background(), []uuid.UUID{ids[0], ids[1], ids[0], ids[2], unknown, uuid.Nil})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	assert.Len(t, got, 3)
	assert.NotContains(t, got, unknown)
	assert.Equal(t, "User B", got[ids[1]].DisplayName())
}

func TestLookupEmpty(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	got, err := New(repo, nil).Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, repo.calls)
}

func TestLookupUsesCacheHits(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	ids := seedUsers(t, repo.MemoryDB, 2)
	cached := &models.Profile{ID: ids[0], FirstName: "Cached"}

	cache := new(MockCache)
	cache.On("Get", mock.Anything, ids).Return(map[uuid.UUID]*models.Profile{ids[0]: cached}, nil)
	cache.On("Set", mock.Anything, mock.MatchedBy(func(ps []*models.Profile) bool {
		return len(ps) == 1 && ps[0].ID == ids[1]
	})).Return(nil)

	got, err := New(repo, cache).Lookup(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, "Cached", got[ids[0]].FirstName)
	assert.Equal(t, "User", got[ids[1]].FirstName)
	assert.Equal(t, 1, repo.calls)
	cache.AssertExpectations(t)
}

func TestLookupAllCachedSkipsBackend(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	id := uuid.New()

	cache := new(MockCache)
	cache.On("Get", mock.Anything, []uuid.UUID{id}).Return(map[uuid.UUID]*models.Profile{id: {ID: id}}, nil)

	got, err := New(repo, cache).Lookup(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Zero(t, repo.calls)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestLookupCacheFailureFallsBackToBackend(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	ids := seedUsers(t, repo.MemoryDB, 1)

	cache := new(MockCache)
	cache.On("Get", mock.Anything, ids).Return(nil, errors.New("connection refused"))
	cache.On("Set", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	got, err := New(repo, cache).Lookup(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLookupBackendFailureIsTransient(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB(), fail: errors.New("timeout")}

	_, err := New(repo, nil).Lookup(context.Background(), []uuid.UUID{uuid.New()})
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
}

func TestGet(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	ids := seedUsers(t, repo.MemoryDB, 1)
	dir := New(repo, nil)

	p, err := dir.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], p.ID)

	_, err = dir.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	repo := &countingRepo{MemoryDB: database.NewMemoryDB()}
	ids := seedUsers(t, repo.MemoryDB, 1)

	cache := new(MockCache)
	cache.On("Invalidate", mock.Anything, ids[0]).Return(nil).Once()
	dir := New(repo, cache)

	name := "Renamed"
	phone := "+91 98765 43210"
	p, err := dir.Update(context.Background(), ids[0], models.ProfileUpdate{FirstName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.FirstName)
	assert.Equal(t, phone, p.Phone)
	cache.AssertExpectations(t)

	long := strings.Repeat("x", 101)
	_, err = dir.Update(context.Background(), ids[0], models.ProfileUpdate{LastName: &long})
	assert.ErrorIs(t, err, apperr.ErrInvalidProfile)

	_, err = dir.Update(context.Background(), uuid.New(), models.ProfileUpdate{FirstName: &name})
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}), time.Minute)
	defer cache.Close()

	p := &models.Profile{ID: uuid.New(), FirstName: "Redis", LastName: "User"}
	missing := uuid.New()
	require.NoError(t, cache.Set(ctx, []*models.Profile{p}))

	hits, err := cache.Get(ctx, []uuid.UUID{p.ID, missing})
	require.NoError(t, err)
	require.Contains(t, hits, p.ID)
	assert.NotContains(t, hits, missing)
	assert.Equal(t, "Redis User", hits[p.ID].DisplayName())

	require.NoError(t, cache.Invalidate(ctx, p.ID))
	hits, err = cache.Get(ctx, []uuid.UUID{p.ID})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
