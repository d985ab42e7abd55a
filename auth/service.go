package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/finance-engine/finance"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

// ErrInvalidCredentials covers both an unknown email and a wrong password.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", finance.ErrUnauthorized)

// Session is what signup and login hand back to the client.
type Session struct {
	User  finance.User
	Token Token
}

type Service struct {
	users  finance.Reader
	dir    *finance.Directory
	issuer *Issuer
	log    zerolog.Logger
	cost   int

	// compared against when the email is unknown so both paths cost one bcrypt
	dummyHash []byte
}

func NewService(users finance.Reader, dir *finance.Directory, issuer *Issuer, log zerolog.Logger) *Service {
	return newService(users, dir, issuer, log, bcrypt.DefaultCost)
}

func newService(users finance.Reader, dir *finance.Directory, issuer *Issuer, log zerolog.Logger, cost int) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Service{
		users:     users,
		dir:       dir,
		issuer:    issuer,
		log:       log.With().Str("component", "auth").Logger(),
		cost:      cost,
		dummyHash: dummy,
	}
}

// Signup registers a user and opens a session for them.
func (s *Service) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	if len(password) < MinPasswordLength {
		return nil, (&finance.ValidationError{}).Add("password", fmt.Sprintf("must have at least %d characters", MinPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.dir.Register(ctx, finance.RegisterInput{Name: name, Email: email, PasswordHash: string(hash)})
	if err != nil {
		return nil, err
	}
	return s.open(*u)
}

// Login checks the password and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetUserByEmail(ctx, finance.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.Info().Int64("user_id", int64(u.ID)).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}
	return s.open(*u)
}

func (s *Service) open(u finance.User) (*Session, error) {
	tok, err := s.issuer.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	s.log.Info().Int64("user_id", int64(u.ID)).Msg("session opened")
	return &Session{User: u, Token: tok}, nil
}
