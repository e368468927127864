package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fleetcmd/internal/logger"
	"fleetcmd/internal/server/api"
	"fleetcmd/internal/server/config"
	"fleetcmd/internal/server/data"
	"fleetcmd/internal/server/database"
	"fleetcmd/internal/server/dispatch"
	"fleetcmd/internal/server/notify"
	"fleetcmd/internal/server/registry"
	"fleetcmd/internal/server/service"
	"fleetcmd/internal/server/template"
	"fleetcmd/internal/server/track"
	"fleetcmd/internal/transport"
	"fleetcmd/internal/version"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	integrations, err := data.New(&cfg.Data, log)
	if err != nil {
		log.Fatal("Failed to initialize data integrations", zap.Error(err))
	}
	defer integrations.Close()

	nc, err := transport.Connect(&cfg.Transport, log)
	if err != nil {
		log.Fatal("Failed to connect to broker", zap.Error(err))
	}
	defer nc.Close()

	channel := transport.NewChannel(nc, &cfg.Transport)
	presence := data.NewRedisPresence(integrations)
	reg := registry.New(channel, db, presenceOrNil(presence), log)

	templates := template.NewStore(db, log)

	notifier := notify.NewManager(&cfg.Notify, log)

	history := data.NewHistoryIndexer(integrations, log)
	sink := data.NewExecutionSink(data.NewEventPublisher(integrations, log), history, log)
	tracker := track.New(db, notify.NewEventSink(sinkOrNil(sink), notifier), cfg.Command.Retention, log)

	dispatcher := dispatch.New(reg, tracker, log)

	svc := service.New(reg, templates, dispatcher, tracker, db, history, cfg.Command, log)
	svc.SetNotifier(notifier)
	if err := svc.Start(ctx); err != nil {
		log.Fatal("Failed to start service", zap.Error(err))
	}
	defer svc.Stop()

	listener := transport.NewListener(nc, svc, log)
	if err := listener.Start(ctx); err != nil {
		log.Fatal("Failed to start fleet listener", zap.Error(err))
	}
	defer listener.Stop()

	router := api.NewRouter(cfg, svc, log)
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Starting server", zap.String("address", cfg.Server.Address))

		var serveErr error
		if cfg.Server.TLS.Enabled {
			serveErr = server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != http.ErrServerClosed {
			log.Fatal("Server error", zap.Error(serveErr))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal", zap.String("signal", sig.String()))

	log.Info("Starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}

// presenceOrNil avoids handing the registry a typed nil.
func presenceOrNil(p *data.RedisPresence) registry.Presence {
	if p == nil {
		return nil
	}
	return p
}

// sinkOrNil avoids handing the tracker a typed nil.
func sinkOrNil(s *data.ExecutionSink) track.EventSink {
	if s == nil {
		return nil
	}
	return s
}
