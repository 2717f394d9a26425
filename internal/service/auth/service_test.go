package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
	"billoffice/internal/util"
)

type fakeUsers struct {
	byEmail map[string]*model.User
	nextID  int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]*model.User{}, nextID: 1}
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if _, exists := f.byEmail[u.Email]; exists {
		return apperr.Validation("email already registered")
	}
	u.ID = f.nextID
	f.nextID++
	cp := *u
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func TestRegister(t *testing.T) {
	svc := NewService(newFakeUsers(), "secret")

	u, err := svc.Register(context.Background(), "a@b.test", "hunter2", "Acme", "1 Main St")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Empty(t, u.PasswordHash, "hash never leaves the service")
}

func TestRegisterMissingFields(t *testing.T) {
	svc := NewService(newFakeUsers(), "secret")

	_, err := svc.Register(context.Background(), "", "hunter2", "", "")
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Register(context.Background(), "a@b.test", "", "", "")
	assert.True(t, apperr.IsValidation(err))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := newFakeUsers()
	svc := NewService(users, "secret")

	_, err := svc.Register(context.Background(), "a@b.test", "hunter2", "", "")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "a@b.test", "hunter2", "", "")
	assert.True(t, apperr.IsValidation(err))
}

func TestLogin(t *testing.T) {
	users := newFakeUsers()
	svc := NewService(users, "secret")
	_, err := svc.Register(context.Background(), "a@b.test", "hunter2", "", "")
	require.NoError(t, err)

	token, err := svc.Login(context.Background(), "a@b.test", "hunter2")
	require.NoError(t, err)

	userID, err := util.ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, users.byEmail["a@b.test"].ID, userID)
}

func TestLoginBadCredentialsIndistinguishable(t *testing.T) {
	svc := NewService(newFakeUsers(), "secret")
	_, err := svc.Register(context.Background(), "a@b.test", "hunter2", "", "")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(context.Background(), "a@b.test", "nope")
	_, unknownEmail := svc.Login(context.Background(), "ghost@b.test", "hunter2")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.True(t, apperr.IsValidation(wrongPassword))
	assert.True(t, apperr.IsValidation(unknownEmail))
}
