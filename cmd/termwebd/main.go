// Command termwebd is the native core of the terminal-sharing server: it
// wires together the Token Store, Rate Limiter, OAuth Bridge, Transfer
// Manager, and Connection Gateway behind a single process and runs until a
// shutdown signal arrives.
//
// Terminal emulation, the HTML/JS client, tunnel subprocess orchestration,
// and platform-specific framebuffer capture are external collaborators
// this binary does not start; it is reachable once one of those feeds a
// video frame in and the gateway accepts a connection.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/termweb-dev/termweb-core/internal/assets"
	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/config"
	"github.com/termweb-dev/termweb-core/internal/gateway"
	"github.com/termweb-dev/termweb-core/internal/logger"
	"github.com/termweb-dev/termweb-core/internal/oauthbridge"
	"github.com/termweb-dev/termweb-core/internal/ratelimit"
	"github.com/termweb-dev/termweb-core/internal/transfer"
	"github.com/termweb-dev/termweb-core/internal/wsapi"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	store, err := authstore.Open(cfg.AuthStateFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AuthStateFile).Msg("failed to open auth state")
	}
	if _, ok := store.OAuthProviderCreds("github"); !ok && cfg.OAuthGitHubClientID != "" {
		if err := store.SetOAuthProvider("github", authstore.ProviderCreds{
			ClientID:     cfg.OAuthGitHubClientID,
			ClientSecret: cfg.OAuthGitHubClientSecret,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to persist github oauth credentials")
		}
	}
	if _, ok := store.OAuthProviderCreds("google"); !ok && cfg.OAuthGoogleClientID != "" {
		if err := store.SetOAuthProvider("google", authstore.ProviderCreds{
			ClientID:     cfg.OAuthGoogleClientID,
			ClientSecret: cfg.OAuthGoogleClientSecret,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to persist google oauth credentials")
		}
	}

	limiter := ratelimit.New(ratelimit.Policy{
		MaxFailures:     cfg.RateLimitMaxFailures,
		Window:          cfg.RateLimitWindow,
		Lockout:         cfg.RateLimitLockout,
		CleanupInterval: cfg.RateLimitCleanup,
	})

	bridge := oauthbridge.New(store)

	transferMgr := transfer.NewManager(cfg.TransferStateDir, cfg.TransferIdleTimeout)
	videoSessions := wsapi.NewVideoSessions()

	gw, err := gateway.New(cfg.ListenAddr, store, limiter, bridge, assets.New())
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("failed to bind listener")
	}
	gw.ConfigJSON = func() string { return "{}" }
	gw.H264Handler = wsapi.NewH264Handler(videoSessions)
	gw.ControlHandler = wsapi.NewControlHandler(videoSessions)
	gw.FileHandler = wsapi.NewFileHandler(transferMgr)

	sched := cron.New()
	if _, err := sched.AddFunc("@every 1m", func() {
		transferMgr.ReapIdle()
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule idle-session reaper")
	}
	if _, err := sched.AddFunc("@every 1m", func() {
		limiter.Cleanup()
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule rate-limiter cleanup")
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		log.Info().Str("addr", gw.Addr().String()).Msg("gateway listening")
		if err := gw.Serve(); err != nil {
			log.Error().Err(err).Msg("gateway accept loop exited")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	// gw.Stop() applies its own bounded drain timeout internally.
	gw.Stop()
	log.Info().Msg("shutdown complete")
}
