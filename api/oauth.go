package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"StandupBrief/db"
)

// HandleSlackInstall redirects the browser into Slack's OAuth consent
// screen.
func (h *Handler) HandleSlackInstall(w http.ResponseWriter, r *http.Request) {
	if h.cfg.SlackClientID == "" || h.cfg.BaseURL == "" {
		h.log.Error("SLACK_CLIENT_ID or BASE_URL not configured")
		http.Error(w, "Slack client ID or base URL not configured", http.StatusInternalServerError)
		return
	}

	redirect := fmt.Sprintf(
		"%s?client_id=%s&scope=%s&redirect_uri=%s%s",
		slackOAuthAuthorizeURL,
		h.cfg.SlackClientID,
		slackOAuthAuthorizeScope,
		h.cfg.BaseURL,
		slackCallbackEndpoint,
	)

	http.Redirect(w, r, redirect, http.StatusFound)
}

// HandleSlackOAuthCallback exchanges the authorization code, stores the
// workspace with its token encrypted at rest, and welcomes the admin.
func (h *Handler) HandleSlackOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	if h.cfg.SlackClientID == "" || h.cfg.SlackClientSecret == "" || h.cfg.BaseURL == "" {
		h.log.Error("missing Slack OAuth credentials")
		http.Error(w, "missing Slack credentials or base URL", http.StatusInternalServerError)
		return
	}

	resp, err := http.PostForm(slackOAuthTokenURL, url.Values{
		"code":          {code},
		"client_id":     {h.cfg.SlackClientID},
		"client_secret": {h.cfg.SlackClientSecret},
		"redirect_uri":  {h.cfg.BaseURL + slackCallbackEndpoint},
	})
	if err != nil {
		h.log.Error("oauth token request failed", "err", err)
		http.Error(w, "OAuth request failed", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "failed to read OAuth response", http.StatusInternalServerError)
		return
	}

	var oauth oauthResponse
	if err := json.Unmarshal(body, &oauth); err != nil {
		http.Error(w, "failed to parse Slack OAuth response", http.StatusInternalServerError)
		return
	}

	if !oauth.Ok {
		h.log.Error("slack oauth returned error", "err", oauth.Error)
		http.Error(w, fmt.Sprintf("Slack error: %s", oauth.Error), http.StatusBadRequest)
		return
	}

	encryptedToken, err := h.crypto.Encrypt(oauth.AccessToken)
	if err != nil {
		h.log.Error("failed to encrypt access token", "team", oauth.Team.ID, "err", err)
		http.Error(w, "failed to store credentials", http.StatusInternalServerError)
		return
	}

	ws := db.Workspace{
		TeamID:      oauth.Team.ID,
		AccessToken: encryptedToken,
		BotUserID:   oauth.BotUserID,
		AdminUserID: oauth.AuthedUser.ID,
	}
	if err := h.workspaces.Save(ws); err != nil {
		h.log.Error("failed to save workspace", "team", oauth.Team.ID, "err", err)
		http.Error(w, "failed to save workspace", http.StatusInternalServerError)
		return
	}

	if _, err := h.gateway.SendDirect(r.Context(), oauth.Team.ID, oauth.AuthedUser.ID, welcomeMessage); err != nil {
		h.log.Warn("failed to send welcome message", "team", oauth.Team.ID, "err", err)
	}

	h.log.Info("workspace installed", "team", oauth.Team.ID, "name", oauth.Team.Name)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("✅ StandupBrief installed. You can return to Slack."))
}
