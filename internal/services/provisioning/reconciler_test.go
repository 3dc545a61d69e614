package provisioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore enforces the same uniqueness rules as the users table.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	creates atomic.Int32
	lookups atomic.Int32

	// When set, the first barrierSize lookups wait for each other so every
	// caller observes "absent" before anyone inserts.
	barrier     chan struct{}
	barrierSize int32

	getErr    error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*models.User)}
}

func (s *memStore) GetByIdentity(_ context.Context, identity string) (*models.User, error) {
	n := s.lookups.Add(1)
	if s.barrier != nil && n <= s.barrierSize {
		if n == s.barrierSize {
			close(s.barrier)
		}
		<-s.barrier
	}
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[identity]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) Create(_ context.Context, user *models.User) (*models.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.Identity]; ok {
		return nil, &database.ConstraintError{Op: "create user", Constraint: "users_pkey"}
	}
	for _, existing := range s.byID {
		if existing.Username == user.Username {
			return nil, &database.ConstraintError{Op: "create user", Constraint: "users_username_key"}
		}
	}
	s.creates.Add(1)
	cp := *user
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.byID[user.Identity] = &cp
	out := cp
	return &out, nil
}

func TestDefaultUser(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		identity     string
		profile      models.Profile
		wantEmail    string
		wantUsername string
	}{
		{"no attributes", "u2", models.Profile{}, "", "u2"},
		{"preferred handle wins", "u1", models.Profile{Emails: []string{"a@x.com"}, Username: "alice", DisplayName: "Alice"}, "a@x.com", "alice"},
		{"display name fallback", "u1", models.Profile{DisplayName: "Alice"}, "", "Alice"},
		{"first non-empty email", "u1", models.Profile{Emails: []string{"", " b@x.com ", "c@x.com"}}, "b@x.com", "u1"},
		{"blank handle ignored", "u1", models.Profile{Username: "   ", DisplayName: "Al"}, "", "Al"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DefaultUser(tt.identity, tt.profile)
			assert.Equal(t, tt.identity, got.Identity)
			assert.Equal(t, tt.wantEmail, got.Email)
			assert.Equal(t, tt.wantUsername, got.Username)
			assert.Equal(t, models.MembershipFree, got.Membership)
			assert.Equal(t, models.UserStatusActive, got.Status)
		})
	}
}

func TestReconciler_CreatesOnFirstSight(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	r := NewReconciler(store, nil)

	got, err := r.EnsureProvisioned(context.Background(), "u2", models.Profile{})
	require.NoError(t, err)
	assert.Equal(t, "u2", got.Username)
	assert.Equal(t, "", got.Email)
	assert.Equal(t, models.MembershipFree, got.Membership)
	assert.EqualValues(t, 1, store.creates.Load())
}

func TestReconciler_IsIdempotent(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	r := NewReconciler(store, nil)
	profile := models.Profile{Emails: []string{"a@x.com"}, Username: "alice"}

	first, err := r.EnsureProvisioned(context.Background(), "u1", profile)
	require.NoError(t, err)
	second, err := r.EnsureProvisioned(context.Background(), "u1", models.Profile{Username: "changed"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, store.creates.Load())
}

func TestReconciler_ProfileLoadedOnlyWhenAbsent(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	r := NewReconciler(store, nil)
	var loads int
	loader := func(context.Context) (models.Profile, error) {
		loads++
		return models.Profile{Username: "alice"}, nil
	}

	for i := 0; i < 3; i++ {
		_, err := r.EnsureProvisionedFunc(context.Background(), "u1", loader)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loads)

	errLoad := errors.New("provider unavailable")
	_, err := r.EnsureProvisionedFunc(context.Background(), "u9", func(context.Context) (models.Profile, error) {
		return models.Profile{}, errLoad
	})
	require.ErrorIs(t, err, errLoad)
	assert.EqualValues(t, 1, store.creates.Load())
}

func TestReconciler_ConcurrentFirstAccess(t *testing.T) {
	t.Parallel()
	const n = 16
	store := newMemStore()
	store.barrier = make(chan struct{})
	store.barrierSize = n
	r := NewReconciler(store, nil)
	profile := models.Profile{Emails: []string{"a@x.com"}, Username: "alice"}

	results := make([]*models.User, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.EnsureProvisioned(context.Background(), "u1", profile)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "call %d", i)
		assert.Equal(t, results[0], results[i], "call %d", i)
	}
	assert.EqualValues(t, 1, store.creates.Load())
	assert.Len(t, store.byID, 1)
}

func TestReconciler_UsernameClashSurfacesError(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	r := NewReconciler(store, nil)

	_, err := r.EnsureProvisioned(context.Background(), "u1", models.Profile{Username: "alice"})
	require.NoError(t, err)

	_, err = r.EnsureProvisioned(context.Background(), "u2", models.Profile{Username: "alice"})
	require.ErrorIs(t, err, database.ErrConstraintViolation)

	existing, _ := store.GetByIdentity(context.Background(), "u1")
	assert.Equal(t, "alice", existing.Username)
	assert.Len(t, store.byID, 1)
}

func TestReconciler_SurfacesOtherErrors(t *testing.T) {
	t.Parallel()

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.getErr = database.ErrPersistence
		_, err := NewReconciler(store, nil).EnsureProvisioned(context.Background(), "u1", models.Profile{})
		require.ErrorIs(t, err, database.ErrPersistence)
	})

	t.Run("create", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.createErr = database.ErrPersistence
		_, err := NewReconciler(store, nil).EnsureProvisioned(context.Background(), "u1", models.Profile{})
		require.ErrorIs(t, err, database.ErrPersistence)
		assert.EqualValues(t, 1, store.lookups.Load())
	})

	t.Run("empty identity", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		_, err := NewReconciler(store, nil).EnsureProvisioned(context.Background(), "", models.Profile{})
		require.ErrorIs(t, err, ErrMissingIdentity)
		assert.EqualValues(t, 0, store.lookups.Load())
	})
}
