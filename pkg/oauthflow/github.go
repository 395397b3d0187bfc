// Package oauthflow drives the OAuth2 Authorization Code exchange and
// refresh for the chat/identity providers this repo integrates with,
// using golang.org/x/oauth2 the same way the teacher's OIDC flow handler
// does — a Config built per call (client credentials can vary per user's
// GitHub App registration) and context-aware Exchange/TokenSource calls.
package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// GitHubClient implements tokenvault.GitHubRefresher and
// tokenvault.GitHubIdentity.
type GitHubClient struct {
	httpClient *http.Client
}

// NewGitHubClient builds a GitHubClient using http.DefaultClient, matching
// the spec's "OAuth refresh inherits the HTTP client's default" contract.
func NewGitHubClient() *GitHubClient {
	return &GitHubClient{httpClient: http.DefaultClient}
}

// AuthCodeURL builds the GitHub OAuth authorization URL for the given
// per-request state token.
func (c *GitHubClient) AuthCodeURL(clientID, redirectURL, state string) string {
	cfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Scopes:      []string{"repo", "read:user", "user:email"},
		Endpoint:    githuboauth.Endpoint,
	}
	return cfg.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for an access/refresh pair.
func (c *GitHubClient) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURL, code string) (accessToken, refreshToken, scope string, expiresAt *time.Time, err error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     githuboauth.Endpoint,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("oauthflow: github code exchange: %w", err)
	}

	return extractToken(tok)
}

// RefreshGitHub implements tokenvault.GitHubRefresher.
func (c *GitHubClient) RefreshGitHub(ctx context.Context, clientID, clientSecret, refreshToken string) (accessToken, newRefreshToken, scope string, expiresAt *time.Time, err error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     githuboauth.Endpoint,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", "", "", nil, fmt.Errorf("oauthflow: github refresh: %w", err)
	}

	return extractToken(tok)
}

func extractToken(tok *oauth2.Token) (accessToken, refreshToken, scope string, expiresAt *time.Time, err error) {
	accessToken = tok.AccessToken
	refreshToken = tok.RefreshToken
	if s, ok := tok.Extra("scope").(string); ok {
		scope = s
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		expiresAt = &expiry
	}
	return accessToken, refreshToken, scope, expiresAt, nil
}

// WhoAmI calls GitHub's authenticated-user endpoint to validate a token and
// resolve its owning login, used both for PAT insertion and OAuth store.
func (c *GitHubClient) WhoAmI(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubAPIBase+"/user", nil)
	if err != nil {
		return "", fmt.Errorf("oauthflow: building who-am-i request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauthflow: calling github who-am-i: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauthflow: github rejected token (status %d)", resp.StatusCode)
	}

	var body struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("oauthflow: decoding who-am-i response: %w", err)
	}
	return body.Login, nil
}
