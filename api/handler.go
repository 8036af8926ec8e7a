// Package api exposes the HTTP surface: the Slack events webhook, the
// OAuth install flow and the DM settings commands.
package api

import (
	"net/http"

	log15 "github.com/inconshreveable/log15/v3"

	"StandupBrief/config"
	"StandupBrief/db"
	"StandupBrief/slack"
	"StandupBrief/standup"
	"StandupBrief/summary"
	"StandupBrief/utils"
)

// WorkspaceStore is the installed-team credential persistence the handlers
// require.
type WorkspaceStore interface {
	Get(teamID string) (*db.Workspace, error)
	Save(ws db.Workspace) error
}

// SettingStore is the recurrence-setting persistence behind the admin
// commands.
type SettingStore interface {
	Put(set standup.Setting) error
	Get(teamID, channelID string) (*standup.Setting, error)
	ByTeam(teamID string) ([]standup.Setting, error)
}

type Handler struct {
	cfg        *config.Config
	workspaces WorkspaceStore
	settings   SettingStore
	engine     *standup.Engine
	publisher  *summary.Publisher
	gateway    slack.Gateway
	dedup      *utils.Dedup
	crypto     *utils.Crypto
	log        log15.Logger
}

func NewHandler(
	cfg *config.Config,
	workspaces WorkspaceStore,
	settings SettingStore,
	engine *standup.Engine,
	publisher *summary.Publisher,
	gateway slack.Gateway,
	dedup *utils.Dedup,
	crypto *utils.Crypto,
	logger log15.Logger,
) *Handler {
	return &Handler{
		cfg:        cfg,
		workspaces: workspaces,
		settings:   settings,
		engine:     engine,
		publisher:  publisher,
		gateway:    gateway,
		dedup:      dedup,
		crypto:     crypto,
		log:        logger,
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}
