package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/domain"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) CreateUser(ctx context.Context, username, passwordHash string) (string, error) {
	args := m.Called(ctx, username, passwordHash)
	return args.String(0), args.Error(1)
}

func (m *MockUserRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockUserRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Compare(hash, password string) (bool, error) {
	args := m.Called(hash, password)
	return args.Bool(0), args.Error(1)
}

type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) Generate(id string, now time.Time) (string, error) {
	args := m.Called(id, now)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

type fixture struct {
	userRepo       *MockUserRepo
	passwordHasher *MockPasswordHasher
	tokenManager   *MockTokenManager
	service        *service
}

func newFixture() fixture {
	userRepo := new(MockUserRepo)
	passwordHasher := new(MockPasswordHasher)
	tokenManager := new(MockTokenManager)
	return fixture{
		userRepo:       userRepo,
		passwordHasher: passwordHasher,
		tokenManager:   tokenManager,
		service:        NewService(userRepo, passwordHasher, tokenManager),
	}
}

func TestSignup(t *testing.T) {
	f := newFixture()

	f.passwordHasher.On("Hash", "strongpassword").Return("hashed", nil)
	f.userRepo.On("CreateUser", mock.Anything, "new_user", "hashed").Return("user-1", nil)
	f.tokenManager.On("Generate", "user-1", mock.Anything).Return("token-1", nil)

	token, err := f.service.Signup(context.Background(), "new_user", "strongpassword")

	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	f.userRepo.AssertExpectations(t)
}

func TestSignupRejectsBadUsernames(t *testing.T) {
	f := newFixture()

	for _, username := range []string{"", "ab", "UPPERCASE", "spaced name", "way_too_long_username_here"} {
		_, err := f.service.Signup(context.Background(), username, "strongpassword")
		assert.ErrorIs(t, err, ErrInvalidUsernameFormat, "username %q", username)
	}
	f.userRepo.AssertNotCalled(t, "CreateUser")
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	f := newFixture()

	_, err := f.service.Signup(context.Background(), "valid_user", "short")

	assert.ErrorIs(t, err, ErrWeakPassword)
	f.passwordHasher.AssertNotCalled(t, "Hash")
}

func TestSignupRejectsOverlongPassword(t *testing.T) {
	f := newFixture()

	long := make([]byte, maxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}

	_, err := f.service.Signup(context.Background(), "valid_user", string(long))

	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestSignupDuplicateUsername(t *testing.T) {
	f := newFixture()

	f.passwordHasher.On("Hash", "strongpassword").Return("hashed", nil)
	f.userRepo.On("CreateUser", mock.Anything, "taken_name", "hashed").
		Return("", domain.ErrDuplicateUsername)

	_, err := f.service.Signup(context.Background(), "taken_name", "strongpassword")

	assert.ErrorIs(t, err, domain.ErrDuplicateUsername)
	f.tokenManager.AssertNotCalled(t, "Generate")
}

func TestLogin(t *testing.T) {
	f := newFixture()

	f.userRepo.On("GetUserByUsername", mock.Anything, "alice").
		Return(domain.User{Id: "user-1", Username: "alice", PasswordHash: "hashed"}, nil)
	f.passwordHasher.On("Compare", "hashed", "strongpassword").Return(true, nil)
	f.tokenManager.On("Generate", "user-1", mock.Anything).Return("token-1", nil)

	token, err := f.service.Login(context.Background(), "alice", "strongpassword")

	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestLoginIncorrectPassword(t *testing.T) {
	f := newFixture()

	f.userRepo.On("GetUserByUsername", mock.Anything, "alice").
		Return(domain.User{Id: "user-1", PasswordHash: "hashed"}, nil)
	f.passwordHasher.On("Compare", "hashed", "wrong").Return(false, nil)

	_, err := f.service.Login(context.Background(), "alice", "wrong")

	assert.ErrorIs(t, err, ErrIncorrectPassword)
	f.tokenManager.AssertNotCalled(t, "Generate")
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture()

	f.userRepo.On("GetUserByUsername", mock.Anything, "ghost").
		Return(domain.User{}, domain.ErrUserNotFound)

	_, err := f.service.Login(context.Background(), "ghost", "whatever")

	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	f.passwordHasher.AssertNotCalled(t, "Compare")
}

func TestLoginHasherFailure(t *testing.T) {
	f := newFixture()

	f.userRepo.On("GetUserByUsername", mock.Anything, "alice").
		Return(domain.User{Id: "user-1", PasswordHash: "hashed"}, nil)
	f.passwordHasher.On("Compare", "hashed", "strongpassword").
		Return(false, errors.New("hasher exploded"))

	_, err := f.service.Login(context.Background(), "alice", "strongpassword")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncorrectPassword)
}

func TestVerifyTokenDelegates(t *testing.T) {
	f := newFixture()

	f.tokenManager.On("Verify", "token-1").Return("user-1", nil)

	id, err := f.service.VerifyToken("token-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}
