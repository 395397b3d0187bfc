package oauthflow

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/focusd/internal/httpserver"
	"github.com/wisbric/focusd/pkg/oauthstate"
	"github.com/wisbric/focusd/pkg/tokenvault"
)

// StateStore is the subset of pkg/oauthstate.Store the handler needs.
type StateStore interface {
	Issue(ctx context.Context, entry oauthstate.Entry) (string, error)
	Consume(ctx context.Context, token string) (oauthstate.Entry, error)
}

// TokenStore is the subset of pkg/tokenvault.Vault the handler needs to
// persist a completed OAuth exchange.
type TokenStore interface {
	Store(ctx context.Context, in tokenvault.StoreInput) (tokenvault.Token, error)
}

// Handler drives the GitHub and Slack OAuth2 Authorization Code flows:
// issuing a CSRF state token on login, and exchanging the returned code for
// a token pair on callback, persisting it via the Token Vault.
type Handler struct {
	state   StateStore
	tokens  TokenStore
	github  *GitHubClient
	slack   *SlackClient
	logger  *slog.Logger

	githubClientID, githubClientSecret, githubRedirectURL string
	slackClientID, slackClientSecret, slackRedirectURL    string
}

func NewHandler(state StateStore, tokens TokenStore, github *GitHubClient, slack *SlackClient, logger *slog.Logger,
	githubClientID, githubClientSecret, githubRedirectURL string,
	slackClientID, slackClientSecret, slackRedirectURL string,
) *Handler {
	return &Handler{
		state: state, tokens: tokens, github: github, slack: slack, logger: logger,
		githubClientID: githubClientID, githubClientSecret: githubClientSecret, githubRedirectURL: githubRedirectURL,
		slackClientID: slackClientID, slackClientSecret: slackClientSecret, slackRedirectURL: slackRedirectURL,
	}
}

// AuthenticatedRoutes returns the login-initiation endpoints, which need a
// resolved user identity to issue a CSRF state token against. Mount these
// under the authenticated API router.
func (h *Handler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/github/login", h.handleGitHubLogin)
	r.Get("/slack/login", h.handleSlackLogin)
	return r
}

// PublicRoutes returns the provider redirect-callback endpoints. These are
// hit directly by the user's browser returning from the provider, outside
// any authenticated session, so the user identity travels in the state
// token instead of a request header.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/github/callback", h.handleGitHubCallback)
	r.Get("/slack/callback", h.handleSlackCallback)
	return r
}

func (h *Handler) handleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	token, err := h.state.Issue(r.Context(), oauthstate.Entry{UserID: userID, AccountLabel: "default"})
	if err != nil {
		h.logger.Error("issuing oauth state", "user_id", userID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to start oauth flow")
		return
	}

	url := h.github.AuthCodeURL(h.githubClientID, h.githubRedirectURL, token)
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.consumeState(w, r)
	if !ok {
		return
	}

	code := r.URL.Query().Get("code")
	accessToken, refreshToken, scope, expiresAt, err := h.github.ExchangeCode(r.Context(), h.githubClientID, h.githubClientSecret, h.githubRedirectURL, code)
	if err != nil {
		h.logger.Error("github code exchange failed", "user_id", entry.UserID, "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "provider_rejected", "GitHub rejected the authorization code")
		return
	}

	login, err := h.github.WhoAmI(r.Context(), accessToken)
	if err != nil {
		h.logger.Warn("github who-am-i failed after exchange", "user_id", entry.UserID, "error", err)
	}

	if _, err := h.tokens.Store(r.Context(), tokenvault.StoreInput{
		UserID:            entry.UserID,
		Provider:          tokenvault.ProviderGitHub,
		AccessToken:       accessToken,
		RefreshToken:      refreshToken,
		Scope:             scope,
		ExpiresAt:         expiresAt,
		AccountLabel:      entry.AccountLabel,
		ExternalAccountID: login,
		TokenType:         tokenvault.TokenTypeOAuth,
		AppConfigID:       entry.AppConfigID,
	}); err != nil {
		h.logger.Error("storing github token", "user_id", entry.UserID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to store token")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "connected", "provider": "github"})
}

func (h *Handler) handleSlackLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	token, err := h.state.Issue(r.Context(), oauthstate.Entry{UserID: userID, AccountLabel: "default"})
	if err != nil {
		h.logger.Error("issuing oauth state", "user_id", userID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to start oauth flow")
		return
	}

	url := h.slack.AuthCodeURL(h.slackClientID, h.slackRedirectURL, token)
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) handleSlackCallback(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.consumeState(w, r)
	if !ok {
		return
	}

	code := r.URL.Query().Get("code")
	accessToken, _, slackUserID, err := h.slack.ExchangeCode(r.Context(), h.slackClientID, h.slackClientSecret, h.slackRedirectURL, code)
	if err != nil {
		h.logger.Error("slack code exchange failed", "user_id", entry.UserID, "error", err)
		httpserver.RespondError(w, http.StatusBadGateway, "provider_rejected", "Slack rejected the authorization code")
		return
	}

	if _, err := h.tokens.Store(r.Context(), tokenvault.StoreInput{
		UserID:            entry.UserID,
		Provider:          tokenvault.ProviderSlack,
		AccessToken:       accessToken,
		AccountLabel:      entry.AccountLabel,
		ExternalAccountID: slackUserID,
		TokenType:         tokenvault.TokenTypeOAuth,
		AppConfigID:       entry.AppConfigID,
	}); err != nil {
		h.logger.Error("storing slack token", "user_id", entry.UserID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to store token")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "connected", "provider": "slack"})
}

func (h *Handler) consumeState(w http.ResponseWriter, r *http.Request) (oauthstate.Entry, bool) {
	stateToken := r.URL.Query().Get("state")
	entry, err := h.state.Consume(r.Context(), stateToken)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_state", "oauth state token is invalid or expired")
		return oauthstate.Entry{}, false
	}
	return entry, true
}
