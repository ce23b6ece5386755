package importapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const DefaultScope = "SystemUserInfo"

// TokenProvider supplies the bearer token attached to every remote call.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("static token is empty")
	}
	return string(t), nil
}

type CredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenURLFor returns the identity endpoint of an instance.
func TokenURLFor(instanceURL string) string {
	return strings.TrimRight(instanceURL, "/") + "/Identity/connect/token"
}

type clientCredentialsProvider struct {
	source oauth2.TokenSource
}

// NewClientCredentialsProvider fetches tokens with the OAuth2 client-credentials grant
// and caches them until they expire. httpClient may be nil.
func NewClientCredentialsProvider(cfg CredentialsConfig, httpClient *http.Client) (TokenProvider, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("token url, client id and client secret are required")
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return &clientCredentialsProvider{source: cc.TokenSource(ctx)}, nil
}

func (p *clientCredentialsProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.source.Token()
	if err != nil {
		return "", errors.Wrap(err, "obtain access token")
	}
	return tok.AccessToken, nil
}
