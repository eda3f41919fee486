package identity

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Profile is what the external identity provider reports about a user.
type Profile struct {
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// DisplayName returns the reported name, falling back to the email's
// local part and finally to "User".
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// Provider is an OAuth2 identity provider.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// GoogleProvider signs users in with Google.
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider builds a provider from the OAuth client credentials.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				googleoauth2.UserinfoEmailScope,
				googleoauth2.UserinfoProfileScope,
			},
		},
	}
}

// AuthCodeURL returns the consent page URL carrying state.
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for a token and fetches the profile.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	svc, err := googleoauth2.NewService(ctx, option.WithTokenSource(g.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("identity provider returned no email")
	}

	return &Profile{
		Email:         strings.ToLower(info.Email),
		Name:          info.Name,
		Picture:       info.Picture,
		EmailVerified: info.VerifiedEmail != nil && *info.VerifiedEmail,
	}, nil
}
