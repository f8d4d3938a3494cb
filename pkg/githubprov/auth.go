package githubprov

import (
	"context"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v75/github"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"

	"github.com/prsentry/prsentry/pkg/errs"
)

// AppAuth holds GitHub App credentials for installation-token auth.
type AppAuth struct {
	AppID      string
	PrivateKey []byte
}

// appJWT builds the app-level RS256 JWT: issued-at backdated 60s against
// clock skew, 10-minute expiry, issuer = app id.
func (a AppAuth) appJWT(now time.Time) (string, error) {
	key, err := jwk.ParseKey(a.PrivateKey, jwk.WithPEM(true))
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, "parsing app private key", err)
	}

	tok, err := jwt.NewBuilder().
		Issuer(a.AppID).
		IssuedAt(now.Add(-60 * time.Second)).
		Expiration(now.Add(10 * time.Minute)).
		Build()
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, "building app JWT", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, "signing app JWT", err)
	}
	return string(signed), nil
}

// InstallationToken lists the app's installations, finds the one whose
// account login matches owner (case-insensitive), and exchanges the app JWT
// for an installation access token.
func (a AppAuth) InstallationToken(ctx context.Context, baseURL, owner string) (string, error) {
	signed, err := a.appJWT(time.Now())
	if err != nil {
		return "", err
	}

	client, err := newAPIClient(bearerClient(ctx, signed), baseURL)
	if err != nil {
		return "", err
	}

	opts := &gh.ListOptions{PerPage: 100}
	for {
		installations, resp, err := client.Apps.ListInstallations(ctx, opts)
		if err != nil {
			return "", errs.Wrap(errs.KindGitProvider, "listing app installations", err)
		}
		for _, inst := range installations {
			if !strings.EqualFold(inst.GetAccount().GetLogin(), owner) {
				continue
			}
			token, _, err := client.Apps.CreateInstallationToken(ctx, inst.GetID(), nil)
			if err != nil {
				return "", errs.Wrap(errs.KindGitProvider, "creating installation token", err)
			}
			return token.GetToken(), nil
		}
		if resp.NextPage == 0 {
			return "", errs.Newf(errs.KindGitProvider, "no app installation found for owner %q", owner)
		}
		opts.Page = resp.NextPage
	}
}

func bearerClient(ctx context.Context, token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, src)
}

// newAPIClient builds a go-github client, pointing it at an enterprise host
// when baseURL is not the public API.
func newAPIClient(hc *http.Client, baseURL string) (*gh.Client, error) {
	if baseURL == "" || strings.Contains(baseURL, "api.github.com") {
		return gh.NewClient(hc), nil
	}
	client, err := gh.NewClient(hc).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "configuring enterprise base URL", err)
	}
	return client, nil
}
