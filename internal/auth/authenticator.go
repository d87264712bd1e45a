package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Request is the payload of the auth frame.
type Request struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	NewAccount bool   `json:"newAccount"`
	Visitor    bool   `json:"visitor"`
	Token      string `json:"token"`
}

type Result struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

type Options struct {
	AllowVisitors bool
	BcryptCost    int
	// Observe, when set, is called with "ok" or the failure code of every attempt.
	Observe func(result string)
}

type Authenticator struct {
	store  Store
	tokens *TokenService
	opts   Options

	// compared against when the account does not exist, to keep timing uniform
	dummyHash []byte
}

func NewAuthenticator(store Store, tokens *TokenService, opts Options) (*Authenticator, error) {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", opts.BcryptCost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{store: store, tokens: tokens, opts: opts, dummyHash: dummy}, nil
}

func (a *Authenticator) Tokens() *TokenService { return a.tokens }

// Authenticate resolves an auth frame into a user and a fresh session token.
// No state is changed on failure, except account creation when NewAccount is set.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) (*Result, error) {
	user, err := a.resolve(ctx, req)
	a.observe(err)
	if err != nil {
		log.Warn().Err(err).Str("module", "auth").Str("username", req.Username).Msg("authentication failed")
		return nil, err
	}
	token, exp, err := a.tokens.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	log.Info().Str("module", "auth").Str("username", user.Username).Bool("visitor", user.Visitor).Msg("authenticated")
	return &Result{User: user, Token: token, ExpiresAt: exp}, nil
}

func (a *Authenticator) resolve(ctx context.Context, req Request) (*domain.User, error) {
	switch {
	case req.Token != "":
		return a.resume(ctx, req.Token)
	case req.Visitor:
		if !a.opts.AllowVisitors {
			return nil, &domain.AuthError{Reason: domain.AuthForbidden, Err: errors.New("visitor login disabled")}
		}
		u, err := domain.NewVisitor(req.Username)
		if err != nil {
			return nil, &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: err}
		}
		return u, nil
	case req.NewAccount:
		if err := a.Register(ctx, req.Username, req.Password); err != nil {
			return nil, err
		}
		return domain.NewUser(req.Username)
	default:
		return a.login(ctx, req.Username, req.Password)
	}
}

func (a *Authenticator) login(ctx context.Context, username, password string) (*domain.User, error) {
	acc, err := a.store.Lookup(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return nil, &domain.AuthError{Reason: domain.AuthInvalidCredentials}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthInvalidCredentials}
	}
	return domain.NewUser(acc.Username)
}

func (a *Authenticator) resume(ctx context.Context, token string) (*domain.User, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthInvalidCredentials, Err: err}
	}
	if claims.Visitor {
		if !a.opts.AllowVisitors {
			return nil, &domain.AuthError{Reason: domain.AuthForbidden}
		}
		return domain.NewVisitor(claims.Username)
	}
	if _, err := a.store.Lookup(ctx, claims.Username); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &domain.AuthError{Reason: domain.AuthInvalidCredentials, Err: err}
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return domain.NewUser(claims.Username)
}

// Register is the set-account operation.
func (a *Authenticator) Register(ctx context.Context, username, password string) error {
	if err := domain.ValidateUsername(username); err != nil {
		return &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: err}
	}
	if err := domain.ValidatePassword(password); err != nil {
		return &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: err}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = a.store.Create(ctx, &Account{Username: username, PasswordHash: string(hash)})
	if errors.Is(err, ErrAlreadyExists) {
		return &domain.AuthError{Reason: domain.AuthAccountExists, Err: err}
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	log.Info().Str("module", "auth").Str("username", username).Msg("account created")
	return nil
}

func (a *Authenticator) observe(err error) {
	if a.opts.Observe == nil {
		return
	}
	if err == nil {
		a.opts.Observe("ok")
		return
	}
	a.opts.Observe(domain.CodeOf(err))
}
