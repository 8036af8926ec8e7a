package main

import (
	"context"
	"net/http"
	"os"

	log15 "github.com/inconshreveable/log15/v3"
	"golang.ngrok.com/ngrok"
	ngrokcfg "golang.ngrok.com/ngrok/config"

	"StandupBrief/api"
	"StandupBrief/config"
	"StandupBrief/db"
	"StandupBrief/scheduler"
	"StandupBrief/slack"
	"StandupBrief/standup"
	"StandupBrief/summary"
	"StandupBrief/utils"
)

// workspaceTokens resolves a team's bot token from the workspace store,
// decrypting it on the way out.
type workspaceTokens struct {
	store  *db.WorkspaceStore
	crypto *utils.Crypto
}

func (w workspaceTokens) BotToken(teamID string) (string, error) {
	ws, err := w.store.Get(teamID)
	if err != nil {
		return "", err
	}
	return w.crypto.Decrypt(ws.AccessToken)
}

func main() {
	logger := log15.New("app", "standupbrief")

	cfg, err := config.Load()
	if err != nil {
		logger.Crit("failed to load configuration", "err", err)
		os.Exit(1)
	}

	crypto, err := utils.NewCrypto(cfg.EncryptionKey)
	if err != nil {
		logger.Crit("failed to initialize crypto", "err", err)
		os.Exit(1)
	}

	gdb, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Crit("failed to connect to database", "err", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	dedup, err := utils.NewDedup(cfg.RedisURL)
	if err != nil {
		logger.Crit("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	logger.Info("connected to redis")

	workspaces := db.NewWorkspaceStore(gdb)
	settings := db.NewSettingStore(gdb)
	sessions := db.NewSessionStore(gdb)

	gateway := slack.NewClient(workspaceTokens{store: workspaces, crypto: crypto})
	engine := standup.NewEngine(sessions, gateway, logger.New("component", "engine"))
	publisher := summary.NewPublisher(sessions, gateway, logger.New("component", "publisher"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(settings, engine, publisher, cfg.SweepInterval,
		logger.New("component", "scheduler"))
	go sched.Run(ctx)

	handler := api.NewHandler(cfg, workspaces, settings, engine, publisher,
		gateway, dedup, crypto, logger.New("component", "api"))
	router := setupRouter(handler)

	if os.Getenv("NGROK_AUTHTOKEN") != "" {
		ln, err := ngrok.Listen(ctx, ngrokcfg.HTTPEndpoint(), ngrok.WithAuthtokenFromEnv())
		if err != nil {
			logger.Crit("failed to open ngrok tunnel", "err", err)
			os.Exit(1)
		}
		logger.Info("serving through ngrok tunnel", "url", ln.URL())
		if err := http.Serve(ln, router); err != nil {
			logger.Crit("server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("server running", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Crit("server failed", "err", err)
		os.Exit(1)
	}
}
