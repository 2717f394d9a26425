package auth

import (
	"context"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
	"billoffice/internal/util"
)

// UserStore is the slice of the user repository the auth flow needs.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users  UserStore
	secret string
}

func NewService(users UserStore, secret string) *Service {
	return &Service{
		users:  users,
		secret: secret,
	}
}

// Register creates an account and returns it with the hash cleared.
func (s *Service) Register(ctx context.Context, email, password, companyName, address string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		CompanyName:  companyName,
		Address:      address,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	u.PasswordHash = ""
	return u, nil
}

// Login checks credentials and issues a token. A wrong password and an
// unknown email return the same error, so login cannot probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsNotFound(err) {
			return "", apperr.Validation("invalid credentials")
		}
		return "", err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", apperr.Validation("invalid credentials")
	}

	return util.GenerateJWT(u.ID, s.secret)
}
