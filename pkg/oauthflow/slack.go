package oauthflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	goslack "github.com/slack-go/slack"
)

const slackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

// SlackScopes are the user-token scopes requested for status/DND control.
var SlackScopes = []string{"users.profile:write", "dnd:write", "dnd:read", "users:read"}

// SlackClient drives the Slack OAuth v2 Authorization Code flow and
// implements tokenvault.Revoker via auth.revoke.
type SlackClient struct {
	httpClient *http.Client
}

func NewSlackClient() *SlackClient {
	return &SlackClient{httpClient: http.DefaultClient}
}

// AuthCodeURL builds the Slack "Add to Slack" authorization URL.
func (c *SlackClient) AuthCodeURL(clientID, redirectURL, state string) string {
	v := url.Values{}
	v.Set("client_id", clientID)
	v.Set("redirect_uri", redirectURL)
	v.Set("state", state)
	v.Set("user_scope", joinScopes(SlackScopes))
	return slackAuthorizeURL + "?" + v.Encode()
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// ExchangeCode exchanges an authorization code for a user token, grounded on
// slack-go/slack's GetOAuthV2ResponseContext helper rather than a hand-rolled
// form POST.
func (c *SlackClient) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURL, code string) (accessToken, teamID, slackUserID string, err error) {
	resp, err := goslack.GetOAuthV2ResponseContext(ctx, c.httpClient, clientID, clientSecret, code, redirectURL)
	if err != nil {
		return "", "", "", fmt.Errorf("oauthflow: slack code exchange: %w", err)
	}

	if resp.AuthedUser.AccessToken != "" {
		return resp.AuthedUser.AccessToken, resp.Team.ID, resp.AuthedUser.ID, nil
	}
	return resp.AccessToken, resp.Team.ID, resp.AuthedUser.ID, nil
}

// Revoke implements tokenvault.Revoker for Slack via auth.revoke.
func (c *SlackClient) Revoke(ctx context.Context, accessToken string) error {
	client := goslack.New(accessToken)
	resp, err := client.RevokeSession(accessToken)
	if err != nil {
		return fmt.Errorf("oauthflow: slack auth.revoke: %w", err)
	}
	if !resp {
		return fmt.Errorf("oauthflow: slack auth.revoke reported not revoked")
	}
	return nil
}
