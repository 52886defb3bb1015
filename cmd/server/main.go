// Command server runs the birthday party API: the public listener plus the
// local admin mirror, backed by the dual-persistence party state store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tianlai/party-server/internal/config"
	"github.com/tianlai/party-server/internal/logging"
	"github.com/tianlai/party-server/internal/metrics"
	"github.com/tianlai/party-server/internal/party"
	"github.com/tianlai/party-server/internal/persist"
	"github.com/tianlai/party-server/internal/server"
	"github.com/tianlai/party-server/supabase/client"
)

func main() {
	// Optional .env for local development; hosted deployments set real env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New(server.ServiceName, "info").Fatalf("configuration: %v", err)
	}

	log := logging.New(server.ServiceName, cfg.LogLevel)

	backend, mode, err := buildBackend(cfg, log)
	if err != nil {
		log.Fatalf("persistence: %v", err)
	}

	content, err := party.LoadStaticContent(cfg.ContentFile)
	if err != nil {
		log.Fatalf("static content: %v", err)
	}

	store := party.NewStore(party.StoreConfig{
		Backend:  backend,
		Log:      log,
		Defaults: func() *party.State { return party.DefaultStateWith(content) },
		Observe:  metrics.RecordSave,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Hydrate(ctx); err != nil {
		log.Fatalf("hydrate state: %v", err)
	}

	srv := server.New(store, cfg, mode, log)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// buildBackend resolves the persistence mode once at startup and returns it
// alongside the backend. A failed Supabase ping permanently degrades the
// process to file-only persistence; a missing mandatory Supabase
// configuration aborts startup.
func buildBackend(cfg *config.Config, log *logging.Logger) (party.SaveBackend, config.BackendMode, error) {
	file := persist.NewFileBackend(cfg.DataFile)

	if cfg.Mode() == config.ModeFileOnly {
		log.Infof("persistence mode: %s (%s)", config.ModeFileOnly, file.Path())
		return file, config.ModeFileOnly, nil
	}

	sb, err := client.New(client.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
	if err != nil {
		return nil, config.ModeFileOnly, err
	}
	supa := persist.NewSupabaseBackend(sb, cfg.SupabaseTable)

	pingCtx, cancel := context.WithTimeout(context.Background(), persist.PingTimeout)
	defer cancel()
	if err := supa.Ping(pingCtx); err != nil {
		if cfg.SupabaseRequired {
			return nil, config.ModeFileOnly, err
		}
		log.Warnf("document store unreachable, degrading to file-only persistence: %v", err)
		return file, config.ModeFileOnly, nil
	}

	log.Infof("persistence mode: %s (table %s, backup %s)", config.ModeSupabasePrimary, cfg.SupabaseTable, file.Path())
	return persist.NewDualBackend(supa, file, log), config.ModeSupabasePrimary, nil
}
