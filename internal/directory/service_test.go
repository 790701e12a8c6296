package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"user-directory/internal/cache"
	"user-directory/internal/credentials"
	"user-directory/internal/database"
	"user-directory/internal/logging"
	"user-directory/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errBoom = errors.New("boom")

// flakyStore wraps the in-memory store and injects failures per method.
type flakyStore struct {
	*database.MemoryUserStore

	listErr   error
	findErr   error
	maxErr    error
	createErr error
	updateErr error
	countErr  error

	// fixedMax pins MaxUserID to simulate a stale concurrent read
	fixedMax *int64

	// onCount runs inside CountByRole, between the stats reads
	onCount func()

	finds int
}

func (f *flakyStore) List(ctx context.Context) ([]models.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryUserStore.List(ctx)
}

func (f *flakyStore) FindByUserID(ctx context.Context, id int64) (*models.User, error) {
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.MemoryUserStore.FindByUserID(ctx, id)
}

func (f *flakyStore) MaxUserID(ctx context.Context) (int64, bool, error) {
	if f.maxErr != nil {
		return 0, false, f.maxErr
	}
	if f.fixedMax != nil {
		return *f.fixedMax, true, nil
	}
	return f.MemoryUserStore.MaxUserID(ctx)
}

func (f *flakyStore) Create(ctx context.Context, u *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.MemoryUserStore.Create(ctx, u)
}

func (f *flakyStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.MemoryUserStore.UpdatePassword(ctx, id, hash)
}

func (f *flakyStore) CountByRole(ctx context.Context, role models.UserRole) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.onCount != nil {
		f.onCount()
	}
	return f.MemoryUserStore.CountByRole(ctx, role)
}

type fakeCache struct {
	stats       *cache.Stats
	getErr      error
	sets        int
	invalidated int
}

func (c *fakeCache) Get(context.Context) (cache.Stats, error) {
	if c.getErr != nil {
		return cache.Stats{}, c.getErr
	}
	if c.stats == nil {
		return cache.Stats{}, cache.ErrMiss
	}
	return *c.stats, nil
}

func (c *fakeCache) Set(_ context.Context, s cache.Stats) error {
	c.sets++
	c.stats = &s
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	c.stats = nil
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *flakyStore) {
	t.Helper()
	store := &flakyStore{MemoryUserStore: database.NewMemoryUserStore()}
	svc := NewService(store, credentials.NewHasher(bcrypt.MinCost), logging.Discard(), opts...)
	return svc, store
}

func mustCreate(t *testing.T, svc *Service, name, pw, role string) *models.User {
	t.Helper()
	u, err := svc.Create(context.Background(), CreateUserInput{Name: name, Password: pw, Role: role})
	require.NoError(t, err)
	return u
}

func TestCreate_SequentialIDsAndStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	alice := mustCreate(t, svc, "Alice", "pw1", "teacher")
	assert.Equal(t, int64(1000), alice.UserID)

	bob := mustCreate(t, svc, "Bob", "pw2", "student")
	assert.Equal(t, int64(1001), bob.UserID)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{StudentCount: 1, TeacherCount: 1}, stats)
}

func TestCreate_HashesPassword(t *testing.T) {
	svc, store := newTestService(t)

	u := mustCreate(t, svc, "Alice", "pw1", "teacher")
	assert.True(t, credentials.IsHashed(u.Password))

	stored, err := store.FindByUserID(context.Background(), u.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.Password)
}

func TestCreate_ListShowsUsersNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var prev int64
	for _, name := range []string{"A", "B", "C", "D"} {
		u := mustCreate(t, svc, name, "pw-"+name, "student")
		assert.Greater(t, u.UserID, prev)
		prev = u.UserID
	}

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 4)

	seen := map[int64]bool{}
	for _, u := range users {
		assert.False(t, seen[u.UserID], "duplicate userId %d", u.UserID)
		seen[u.UserID] = true
		assert.NotEqual(t, "pw-"+u.Name, u.Password)
	}
	assert.Equal(t, "D", users[0].Name)
}

func TestCreate_AfterBootstrapContinuesFromAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	require.Equal(t, BootstrapCreated, svc.EnsureDefaultAdmin(context.Background(), AdminAccount{Name: "Admin", Password: "admin123"}))

	u := mustCreate(t, svc, "Alice", "pw", "teacher")
	assert.Equal(t, int64(1000), u.UserID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateUserInput
	}{
		{"missing name", CreateUserInput{Password: "p", Role: "student"}},
		{"blank name", CreateUserInput{Name: "  ", Password: "p", Role: "student"}},
		{"missing password", CreateUserInput{Name: "A", Role: "student"}},
		{"missing role", CreateUserInput{Name: "A", Password: "p"}},
		{"unknown role", CreateUserInput{Name: "A", Password: "p", Role: "janitor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)
			store.maxErr = errBoom // must not be reached

			_, err := svc.Create(context.Background(), tt.in)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreate_PasswordTooLongIsClientError(t *testing.T) {
	svc, store := newTestService(t)
	store.maxErr = errBoom // must not be reached

	_, err := svc.Create(context.Background(), CreateUserInput{
		Name:     "Long",
		Password: strings.Repeat("x", credentials.MaxPasswordBytes+1),
		Role:     "student",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "72")

	store.maxErr = nil
	u, err := svc.Create(context.Background(), CreateUserInput{
		Name:     "Edge",
		Password: strings.Repeat("x", credentials.MaxPasswordBytes),
		Role:     "student",
	})
	require.NoError(t, err)
	assert.Equal(t, FirstUserID, u.UserID)
}

func TestCreate_AcceptsLegacyRoleLabels(t *testing.T) {
	svc, _ := newTestService(t)

	u := mustCreate(t, svc, "Sara", "pw", "طالب")
	assert.Equal(t, models.RoleStudent, u.Role)
}

func TestCreate_ConflictOnStaleMax(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, "Alice", "pw1", "teacher")

	// both requests read the same max before either inserts
	stale := first.UserID - 1
	store.fixedMax = &stale

	_, err := svc.Create(ctx, CreateUserInput{Name: "Bob", Password: "pw2", Role: "student"})
	assert.ErrorIs(t, err, ErrUserIDConflict)

	got, err := store.FindByUserID(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name, "existing record must survive the conflict")
}

func TestCreate_ConcurrentCreatesSucceedOrConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ids       []int64
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := svc.Create(ctx, CreateUserInput{Name: "U", Password: "pw", Role: "student"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ids = append(ids, u.UserID)
			case errors.Is(err, ErrUserIDConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, len(ids)+conflicts)
	seen := map[int64]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "userId %d assigned twice", id)
		seen[id] = true
	}

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, len(ids))
}

func TestCreate_StoreErrors(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	in := CreateUserInput{Name: "A", Password: "p", Role: "student"}

	store.maxErr = errBoom
	_, err := svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInternal)

	store.maxErr = nil
	store.createErr = errBoom
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInternal)

	store.createErr = database.ErrDuplicateUserID
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrUserIDConflict)
}

func TestAuthenticate_Success(t *testing.T) {
	svc, _ := newTestService(t)
	u := mustCreate(t, svc, "Alice", "pw1", "teacher")

	p, err := svc.Authenticate(context.Background(), "1000", "pw1")
	require.NoError(t, err)
	assert.Equal(t, &Principal{Name: "Alice", Role: models.RoleTeacher, UserID: u.UserID}, p)
}

func TestAuthenticate_WrongPasswordLooksLikeUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "Alice", "pw1", "teacher")
	ctx := context.Background()

	_, wrongPw := svc.Authenticate(ctx, "1000", "nope")
	_, unknown := svc.Authenticate(ctx, "4242", "pw1")

	assert.ErrorIs(t, wrongPw, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
}

func TestAuthenticate_ClientErrorsSkipStore(t *testing.T) {
	tests := []struct {
		name string
		id   string
		pw   string
	}{
		{"non-numeric id", "abc", "x"},
		{"missing id", "", "x"},
		{"missing password", "1000", ""},
		{"fractional id", "10.5", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)

			_, err := svc.Authenticate(context.Background(), tt.id, tt.pw)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.NotErrorIs(t, err, ErrInvalidCredentials)
			assert.Zero(t, store.finds)
		})
	}
}

func TestAuthenticate_StoreError(t *testing.T) {
	svc, store := newTestService(t)
	store.findErr = errBoom

	_, err := svc.Authenticate(context.Background(), "1000", "pw")
	assert.ErrorIs(t, err, ErrInternal)
}

func TestAuthenticate_MigratesLegacyPassword(t *testing.T) {
	audit := database.NewMemoryAuditStore()
	svc, store := newTestService(t, WithAudit(audit))
	ctx := context.Background()

	require.NoError(t, store.MemoryUserStore.Create(ctx, &models.User{
		UserID: 999, Name: "Admin", Password: "admin123", Role: models.RoleAdmin,
	}))

	_, err := svc.Authenticate(ctx, "999", "admin123")
	require.NoError(t, err)

	stored, err := store.FindByUserID(ctx, 999)
	require.NoError(t, err)
	assert.True(t, credentials.IsHashed(stored.Password))
	assert.NotEqual(t, "admin123", stored.Password)

	// second login goes through the hash
	p, err := svc.Authenticate(ctx, "999", "admin123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)

	again, err := store.FindByUserID(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, stored.Password, again.Password, "hashed password must not be rewritten")

	logs, err := audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditPasswordUpgraded, logs[0].Action)
}

func TestAuthenticate_LegacyUpgradeFailureStillLogsIn(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.MemoryUserStore.Create(ctx, &models.User{
		UserID: 1000, Name: "Old", Password: "plain", Role: models.RoleStudent,
	}))
	store.updateErr = errBoom

	p, err := svc.Authenticate(ctx, "1000", "plain")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), p.UserID)

	stored, err := store.FindByUserID(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, "plain", stored.Password)
}

func TestList_StoreError(t *testing.T) {
	svc, store := newTestService(t)
	store.listErr = errBoom

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, ErrInternal)
}

func TestStats_StoreError(t *testing.T) {
	svc, store := newTestService(t)
	store.countErr = errBoom

	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, ErrInternal)
}

func TestStats_UsesCacheAndInvalidatesOnCreate(t *testing.T) {
	c := &fakeCache{}
	svc, store := newTestService(t, WithStatsCache(c))
	ctx := context.Background()

	mustCreate(t, svc, "Alice", "pw", "teacher")
	assert.Equal(t, 1, c.invalidated)

	s, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TeacherCount: 1}, s)
	assert.Equal(t, 1, c.sets)

	// served from cache even if the store breaks
	store.countErr = errBoom
	s, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TeacherCount: 1}, s)

	store.countErr = nil
	mustCreate(t, svc, "Bob", "pw", "student")
	s, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{StudentCount: 1, TeacherCount: 1}, s)
}

func TestStats_CacheFailureFallsThrough(t *testing.T) {
	svc, _ := newTestService(t, WithStatsCache(&fakeCache{getErr: errBoom}))
	mustCreate(t, svc, "Bob", "pw", "student")

	s, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{StudentCount: 1}, s)
}

func TestStats_CreateDuringCountIsNotCachedStale(t *testing.T) {
	c := &fakeCache{}
	svc, store := newTestService(t, WithStatsCache(c))
	ctx := context.Background()

	store.onCount = func() {
		store.onCount = nil
		mustCreate(t, svc, "Late", "pw", "student")
	}

	_, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.sets, "counts read across an invalidation must not be cached")

	s, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{StudentCount: 1}, s)
	assert.Equal(t, 1, c.sets)
}
