package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"pictoria-server/internal/domain"
)

// Session is the token pair handed back to clients after a sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

// User is the provider-side identity record.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Gateway is the credential/session surface the handlers depend on. The
// production implementation delegates everything to the managed auth provider.
type Gateway interface {
	SignUp(ctx context.Context, email, password, fullName string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPassword(ctx context.Context, email string) error
}

type Options struct {
	ProjectRef string
	AnonKey    string
	ServiceKey string
	BaseURL    string
}

type gotrueGateway struct {
	client gotrue.Client
}

// NewGateway builds a Gateway backed by the Supabase GoTrue service.
func NewGateway(opts Options) (Gateway, error) {
	if opts.ProjectRef == "" {
		return nil, errors.New("auth: project reference is required")
	}
	key := opts.AnonKey
	if key == "" {
		key = opts.ServiceKey
	}
	if key == "" {
		return nil, errors.New("auth: API key is required")
	}
	client := gotrue.New(opts.ProjectRef, key)
	if opts.BaseURL != "" {
		client = client.WithCustomGoTrueURL(strings.TrimRight(opts.BaseURL, "/") + "/auth/v1")
	}
	return &gotrueGateway{client: client}, nil
}

func (g *gotrueGateway) SignUp(ctx context.Context, email, password, fullName string) (*User, error) {
	req := types.SignupRequest{
		Email:    email,
		Password: password,
	}
	if fullName != "" {
		req.Data = map[string]interface{}{"full_name": fullName}
	}
	resp, err := g.client.Signup(req)
	if err != nil {
		return nil, fmt.Errorf("auth: signup: %w", err)
	}
	return &User{ID: resp.ID.String(), Email: resp.Email}, nil
}

func (g *gotrueGateway) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := g.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, "invalid email or password")
	}
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		UserID:       resp.User.ID.String(),
		Email:        resp.User.Email,
	}, nil
}

func (g *gotrueGateway) SignOut(ctx context.Context, accessToken string) error {
	if err := g.client.WithToken(accessToken).Logout(); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

func (g *gotrueGateway) ResetPassword(ctx context.Context, email string) error {
	if err := g.client.Recover(types.RecoverRequest{Email: email}); err != nil {
		return fmt.Errorf("auth: recover: %w", err)
	}
	return nil
}
