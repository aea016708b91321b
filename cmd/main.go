package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"labelguard/internal/audio"
	"labelguard/internal/feed"
	"labelguard/internal/handlers"
	"labelguard/internal/interlock"
	"labelguard/internal/logger"
	"labelguard/internal/models"
	"labelguard/internal/repository"
	"labelguard/internal/repository/db"
	"labelguard/internal/server"
	"labelguard/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	feedStdin  = "stdin"
	feedSerial = "serial"
	feedNone   = "none"

	limiterCleanupEvery = time.Hour
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfgErr := loadConfig()
	log := logger.Get(viper.GetString("log.level"))
	if cfgErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(cfgErr, &notFound) {
			log.Fatalw("error reading config", "err", cfgErr)
		}
		log.Warnw("config_file_missing", "err", cfgErr)
	}

	defaults := defaultValidationConfig()
	if err := service.ValidateConfig(defaults); err != nil {
		log.Fatalw("invalid defaults in config", "err", err)
	}

	conn, repos := openDB(log)
	if conn != nil {
		defer func() {
			if cerr := conn.Close(); cerr != nil {
				log.Errorw("failed to close sqlite", "err", cerr)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	store := newStore(repos, defaults, log)
	var events repository.EventRepo
	if repos != nil {
		events = repos.EventRepo
	}
	// The persister outlives the machine so the last transitions are saved.
	persistCtx, stopPersister := context.WithCancel(context.Background())
	defer stopPersister()
	persister := service.NewPersister(store, events, log)
	spawn(func() { persister.Run(persistCtx) })

	player, closeAudio := newAudio(log)
	defer closeAudio()

	line := newInterlock(ctx, spawn, log)

	machine := service.NewMachine(service.MachineDeps{
		Store:     store,
		Persist:   persister,
		Audio:     player,
		Interlock: line,
		Clock:     service.RealClock(),
		Defaults:  defaults,
	}, log)
	spawn(func() { machine.Run(ctx) })

	services := service.NewService(machine, repos, service.AuthConfig{
		SigningKey: signingKey(log),
		TokenTTL:   viper.GetDuration("auth.token_ttl"),
	})

	startFeed(ctx, spawn, services, log)

	apiHandler := handlers.NewHandler(services, log, handlers.Options{
		AuthRequests: viper.GetInt("auth.rate_limit.requests"),
		AuthWindow:   viper.GetDuration("auth.rate_limit.window"),
	})
	go apiHandler.Limiter().RunCleanup(ctx.Done(), limiterCleanupEvery)

	srv, err := server.Listen(viper.GetString("port"), apiHandler.InitRoutes())
	if err != nil {
		log.Fatalw("error starting server", "err", err)
	}
	log.Infow("http_listening", "addr", srv.Addr())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run(ctx) }()

	waitForShutdown(serveErr, log)

	log.Infow("shutting down...")
	cancel()
	if err := <-serveErr; err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	<-machine.Done()
	stopPersister()
	// persister drains before the database closes
	wg.Wait()
}

func loadConfig() error {
	viper.SetEnvPrefix("LABELGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", "8080")
	viper.SetDefault("log.level", logger.InfoLevel)
	viper.SetDefault("db.path", "labelguard.db")
	viper.SetDefault("store.fallback_path", "labelguard-fallback.json")
	viper.SetDefault("feed.source", feedStdin)
	viper.SetDefault("feed.serial.baud", 9600)
	viper.SetDefault("audio.enabled", true)
	viper.SetDefault("audio.alarm_interval", time.Second)
	viper.SetDefault("interlock.enabled", false)
	viper.SetDefault("interlock.unit_id", 1)
	viper.SetDefault("interlock.timeout", 2*time.Second)
	viper.SetDefault("auth.token_ttl", time.Hour)
	viper.SetDefault("auth.rate_limit.requests", 5)
	viper.SetDefault("auth.rate_limit.window", time.Minute)
	viper.SetDefault("defaults.auto_reset_seconds", 3.0)
	viper.SetDefault("defaults.sound_enabled", true)

	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

func defaultValidationConfig() models.ValidationConfig {
	optional := func(key string) *string {
		if v := strings.TrimSpace(viper.GetString(key)); v != "" {
			return &v
		}
		return nil
	}
	return models.ValidationConfig{
		AutoResetSeconds: viper.GetFloat64("defaults.auto_reset_seconds"),
		SoundEnabled:     viper.GetBool("defaults.sound_enabled"),
		StationID:        optional("defaults.station_id"),
		LineID:           optional("defaults.line_id"),
	}
}

// openDB opens SQLite. On failure the process keeps running on the simple
// store alone, with audit and supervisor auth disabled.
func openDB(log *logger.Logger) (*sql.DB, *repository.Repository) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Warnw("db_disabled", "reason", "db.path is empty")
		return nil, nil
	}
	conn, err := db.InitDB(dbPath)
	if err != nil {
		log.Errorw("sqlite_unavailable_using_simple_store", "path", dbPath, "err", err)
		return nil, nil
	}
	return conn, repository.NewRepository(conn)
}

// signingKey falls back to a per-process random key, so tokens do not
// survive a restart unless auth.signing_key is set.
func signingKey(log *logger.Logger) string {
	if key := viper.GetString("auth.signing_key"); key != "" {
		return key
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalw("generate signing key", "err", err)
	}
	log.Warnw("auth_signing_key_generated", "hint", "set LABELGUARD_AUTH_SIGNING_KEY to keep tokens across restarts")
	return hex.EncodeToString(buf)
}

func newStore(repos *repository.Repository, defaults models.ValidationConfig, log *logger.Logger) repository.Store {
	simple := repository.NewSimpleStore(viper.GetString("store.fallback_path"))
	if repos == nil {
		return repository.NewFallbackStore(simple.Config(), simple.History(), simple, defaults, log)
	}
	return repository.NewFallbackStore(repos.Config, repos.History, simple, defaults, log)
}

func newAudio(log *logger.Logger) (service.AudioPlayer, func()) {
	if !viper.GetBool("audio.enabled") {
		return audio.Muted{}, func() {}
	}
	b := audio.NewBeeper(os.Stderr, viper.GetDuration("audio.alarm_interval"))
	log.Infow("audio_enabled", "alarm_interval", viper.GetDuration("audio.alarm_interval"))
	return b, b.Close
}

func newInterlock(ctx context.Context, spawn func(func()), log *logger.Logger) service.LineInterlock {
	if !viper.GetBool("interlock.enabled") {
		return interlock.Noop{}
	}
	m, err := interlock.NewModbus(interlock.Config{
		Endpoint: viper.GetString("interlock.endpoint"),
		UnitID:   uint8(viper.GetUint("interlock.unit_id")),
		Register: uint16(viper.GetUint("interlock.register")),
		Timeout:  viper.GetDuration("interlock.timeout"),
	}, log)
	if err != nil {
		log.Errorw("interlock_disabled", "err", err)
		return interlock.Noop{}
	}
	spawn(func() { m.Run(ctx) })
	return m
}

// startFeed connects the configured scanner source to the operator loop.
func startFeed(ctx context.Context, spawn func(func()), services *service.Service, log *logger.Logger) {
	source := strings.ToLower(strings.TrimSpace(viper.GetString("feed.source")))
	if source == feedNone || source == "" {
		return
	}

	tokens := make(chan string)
	switch source {
	case feedStdin:
		go func() {
			// stdin reads block; this goroutine ends with the process
			if err := feed.ReadTokens(ctx, os.Stdin, tokens); err != nil {
				log.Warnw("stdin_feed_stopped", "err", err)
			}
		}()
	case feedSerial:
		spawn(func() {
			feed.RunSerial(ctx, feed.SerialConfig{
				Device: viper.GetString("feed.serial.device"),
				Baud:   viper.GetInt("feed.serial.baud"),
			}, tokens, log)
		})
	default:
		log.Errorw("unknown_feed_source", "source", source)
		return
	}

	op := feed.NewOperator(services.Validation, services.History, services.Configuration, os.Stdout, log)
	spawn(func() { op.Run(ctx, tokens) })
	log.Infow("scan_feed_started", "source", source)
}

// waitForShutdown blocks until a termination signal or the server stops on its own.
func waitForShutdown(serveErr <-chan error, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		log.Fatalw("server stopped", "err", err)
	}
}
