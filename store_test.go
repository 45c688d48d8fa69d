package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	session "github.com/campuskit/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLoginService implements session.LoginService for testing
type MockLoginService struct {
	mock.Mock
}

func (m *MockLoginService) Login(ctx context.Context, creds session.Credentials) (*session.LoginResult, error) {
	args := m.Called(ctx, creds)
	if res := args.Get(0); res != nil {
		return res.(*session.LoginResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBridge implements session.ChannelBridge for testing
type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) Connect(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockBridge) Disconnect() {
	m.Called()
}

// blockingLoginService parks Login until released, for concurrency tests.
type blockingLoginService struct {
	entered chan struct{}
	release chan struct{}
	result  *session.LoginResult
}

func (b *blockingLoginService) Login(ctx context.Context, creds session.Credentials) (*session.LoginResult, error) {
	close(b.entered)
	<-b.release
	return b.result, nil
}

func newTestStore(t *testing.T, api session.LoginService, opts ...session.StoreOption) (*session.Store, *session.TokenStore) {
	t.Helper()
	tokens := session.NewTokenStore(session.NewMemoryStorage())
	return session.NewStore(tokens, api, opts...), tokens
}

func TestStoreLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login authenticates and connects the channel", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(time.Hour))
		api := &MockLoginService{}
		api.On("Login", mock.Anything, mock.Anything).Return(&session.LoginResult{
			Token:    raw,
			Username: "jdoe",
			Roles:    []string{"TEACHER"},
			TenantID: "tenant-1",
		}, nil)
		bridge := &MockBridge{}
		bridge.On("Connect", mock.Anything, "user-1").Return(nil)

		store, tokens := newTestStore(t, api, session.WithStoreBridge(bridge))

		err := store.Login(ctx, session.Credentials{Username: "jdoe", Password: "secret"})

		require.NoError(t, err)
		assert.True(t, store.IsAuthenticated())

		role, ok := store.PrimaryRole()
		require.True(t, ok)
		assert.Equal(t, session.RoleTeacher, role)

		persisted, ok := tokens.Read(ctx)
		require.True(t, ok)
		assert.Equal(t, raw, persisted)

		tenantID, ok := tokens.TenantID(ctx)
		require.True(t, ok)
		assert.Equal(t, "tenant-1", tenantID)

		state := store.CurrentState()
		assert.False(t, state.Loading)
		assert.Empty(t, state.Error)
		bridge.AssertCalled(t, "Connect", mock.Anything, "user-1")
	})

	t.Run("failed login records the error and stays unauthenticated", func(t *testing.T) {
		api := &MockLoginService{}
		api.On("Login", mock.Anything, mock.Anything).Return(nil, session.ErrorFromStatus(400, []byte(`{"message":"bad credentials"}`)))

		store, tokens := newTestStore(t, api)

		err := store.Login(ctx, session.Credentials{Username: "jdoe", Password: "wrong"})

		require.Error(t, err)
		assert.False(t, store.IsAuthenticated())
		state := store.CurrentState()
		assert.False(t, state.Loading)
		assert.NotEmpty(t, state.Error)
		_, ok := tokens.Read(ctx)
		assert.False(t, ok)
	})

	t.Run("invalid payload never reaches the network", func(t *testing.T) {
		api := &MockLoginService{}
		store, _ := newTestStore(t, api)

		err := store.Login(ctx, session.Credentials{})

		require.Error(t, err)
		api.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})

	t.Run("undecodable token from the server resets the session", func(t *testing.T) {
		api := &MockLoginService{}
		api.On("Login", mock.Anything, mock.Anything).Return(&session.LoginResult{Token: "garbage"}, nil)
		store, tokens := newTestStore(t, api)

		err := store.Login(ctx, session.Credentials{Username: "jdoe", Password: "secret"})

		require.Error(t, err)
		assert.False(t, store.IsAuthenticated())
		state := store.CurrentState()
		assert.Empty(t, state.Error)
		_, ok := tokens.Read(ctx)
		assert.False(t, ok)
	})

	t.Run("a second login while one is in flight is rejected", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(time.Hour))
		api := &blockingLoginService{
			entered: make(chan struct{}),
			release: make(chan struct{}),
			result:  &session.LoginResult{Token: raw},
		}
		store, _ := newTestStore(t, api)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Login(ctx, session.Credentials{Username: "jdoe", Password: "secret"})
		}()

		<-api.entered
		err := store.Login(ctx, session.Credentials{Username: "jdoe", Password: "secret"})
		assert.ErrorIs(t, err, session.ErrLoginInFlight)

		close(api.release)
		wg.Wait()
		assert.True(t, store.IsAuthenticated())
	})
}

func TestStoreLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("logout clears storage disconnects and resets state", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(time.Hour))
		api := &MockLoginService{}
		api.On("Login", mock.Anything, mock.Anything).Return(&session.LoginResult{Token: raw}, nil)
		bridge := &MockBridge{}
		bridge.On("Connect", mock.Anything, mock.Anything).Return(nil)
		bridge.On("Disconnect").Return()

		store, tokens := newTestStore(t, api, session.WithStoreBridge(bridge))
		require.NoError(t, store.Login(ctx, session.Credentials{Username: "jdoe", Password: "secret"}))

		store.Logout(ctx)

		assert.Equal(t, session.State{}, store.CurrentState())
		_, ok := tokens.Read(ctx)
		assert.False(t, ok)
		bridge.AssertCalled(t, "Disconnect")
	})
}

func TestStoreForceLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent forced logouts apply exactly once", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(time.Hour))
		api := &MockLoginService{}
		api.On("Login", mock.Anything, mock.Anything).Return(&session.LoginResult{Token: raw}, nil)
		bridge := &MockBridge{}
		bridge.On("Connect", mock.Anything, mock.Anything).Return(nil)
		bridge.On("Disconnect").Return()

		store, _ := newTestStore(t, api, session.WithStoreBridge(bridge))
		require.NoError(t, store.Login(ctx, session.Credentials{Username: "jdoe", Password: "secret"}))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.ForceLogout(ctx)
			}()
		}
		wg.Wait()

		assert.False(t, store.IsAuthenticated())
		bridge.AssertNumberOfCalls(t, "Disconnect", 1)
	})

	t.Run("no-op when already unauthenticated", func(t *testing.T) {
		bridge := &MockBridge{}
		store, _ := newTestStore(t, &MockLoginService{}, session.WithStoreBridge(bridge))

		store.ForceLogout(ctx)

		bridge.AssertNotCalled(t, "Disconnect")
	})
}

func TestStoreCheckAuthStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("rehydrates from a valid stored token", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"PRINCIPAL"}, "tenant-1", time.Now().Add(time.Hour))
		store, tokens := newTestStore(t, &MockLoginService{})
		require.NoError(t, tokens.Save(ctx, raw))

		store.CheckAuthStatus(ctx)

		assert.True(t, store.IsAuthenticated())
		role, ok := store.PrimaryRole()
		require.True(t, ok)
		assert.Equal(t, session.RolePrincipal, role)
	})

	t.Run("prefers the cached user snapshot over claims", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(time.Hour))
		store, tokens := newTestStore(t, &MockLoginService{})
		require.NoError(t, tokens.Save(ctx, raw))
		require.NoError(t, tokens.SaveUser(ctx, &session.User{
			ID:        "user-1",
			Username:  "jdoe",
			FirstName: "Jane",
			Roles:     []session.Role{session.RoleTeacher},
		}))

		store.CheckAuthStatus(ctx)

		user, ok := store.CurrentUser()
		require.True(t, ok)
		assert.Equal(t, "Jane", user.FirstName)
	})

	t.Run("expired token clears storage and yields an empty session", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(-time.Second))
		store, tokens := newTestStore(t, &MockLoginService{})
		require.NoError(t, tokens.Save(ctx, raw))

		store.CheckAuthStatus(ctx)

		assert.Equal(t, session.State{}, store.CurrentState())
		_, ok := tokens.Read(ctx)
		assert.False(t, ok)
	})

	t.Run("idempotent on repeat calls", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"TEACHER"}, "tenant-1", time.Now().Add(time.Hour))
		store, tokens := newTestStore(t, &MockLoginService{})
		require.NoError(t, tokens.Save(ctx, raw))

		store.CheckAuthStatus(ctx)
		first := store.CurrentState()
		store.CheckAuthStatus(ctx)

		assert.Equal(t, first, store.CurrentState())
	})
}

func TestStoreClearError(t *testing.T) {
	ctx := context.Background()

	api := &MockLoginService{}
	api.On("Login", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	store, _ := newTestStore(t, api)

	require.Error(t, store.Login(ctx, session.Credentials{Username: "u", Password: "p"}))
	require.NotEmpty(t, store.CurrentState().Error)

	store.ClearError()

	assert.Empty(t, store.CurrentState().Error)
}

func TestStoreSubscriptions(t *testing.T) {
	t.Run("subscription delivers the current state first", func(t *testing.T) {
		store, _ := newTestStore(t, &MockLoginService{})

		sub := store.Subscribe()
		defer sub.Close()

		select {
		case state := <-sub.States():
			assert.Equal(t, session.State{}, state)
		case <-time.After(time.Second):
			t.Fatal("no initial state delivered")
		}
	})

	t.Run("close detaches deterministically", func(t *testing.T) {
		store, _ := newTestStore(t, &MockLoginService{})
		sub := store.Subscribe()
		sub.Close()
		sub.Close() // idempotent
		store.ClearError()
	})
}

func TestStoreAwaitPrimaryRole(t *testing.T) {
	ctx := context.Background()

	t.Run("returns immediately when the role is already present", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"ADMIN"}, "tenant-1", time.Now().Add(time.Hour))
		store, tokens := newTestStore(t, &MockLoginService{})
		require.NoError(t, tokens.Save(ctx, raw))
		store.CheckAuthStatus(ctx)

		start := time.Now()
		role, ok := store.AwaitPrimaryRole(ctx, 5*time.Second)

		require.True(t, ok)
		assert.Equal(t, session.RoleAdmin, role)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("takes the first role that becomes available", func(t *testing.T) {
		raw := mintToken(t, "user-1", []string{"STUDENT"}, "tenant-1", time.Now().Add(time.Hour))
		store, tokens := newTestStore(t, &MockLoginService{})
		require.NoError(t, tokens.Save(ctx, raw))

		go func() {
			time.Sleep(50 * time.Millisecond)
			store.CheckAuthStatus(ctx)
		}()

		role, ok := store.AwaitPrimaryRole(ctx, 5*time.Second)

		require.True(t, ok)
		assert.Equal(t, session.RoleStudent, role)
	})

	t.Run("denies when the bound elapses", func(t *testing.T) {
		store, _ := newTestStore(t, &MockLoginService{})

		_, ok := store.AwaitPrimaryRole(ctx, 50*time.Millisecond)

		assert.False(t, ok)
	})

	t.Run("denies on context cancellation", func(t *testing.T) {
		store, _ := newTestStore(t, &MockLoginService{})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, ok := store.AwaitPrimaryRole(cancelled, time.Minute)

		assert.False(t, ok)
	})
}
