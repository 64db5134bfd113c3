// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/overture-games/mandate/internal/auth"
	"github.com/overture-games/mandate/internal/handlers"
	"github.com/overture-games/mandate/internal/historian"
	"github.com/overture-games/mandate/internal/middleware"
	"github.com/overture-games/mandate/internal/room"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	issuer, err := auth.NewIssuer()
	if err != nil {
		log.Fatalf("init token issuer: %v", err)
	}

	// The archiver is optional; without REDIS_ADDR the server runs without
	// event archival.
	var archiver room.Archiver
	if os.Getenv("REDIS_ADDR") != "" {
		pub, err := historian.NewPublisher(logger)
		if err != nil {
			log.Fatalf("connect historian redis: %v", err)
		}
		defer pub.Close()
		archiver = pub
	} else {
		logger.Info("REDIS_ADDR not set, event archival disabled")
	}

	store := room.NewStore()
	mgr := room.NewManager(logger, room.DefaultConfig(), store, issuer, archiver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.RunHeartbeat(ctx)

	srv := handlers.NewServer(logger, mgr)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.HealthHandler)
	mux.Handle("/ws", middleware.LogMiddleware(logger)(srv.WSHandler()))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
		_ = httpSrv.Shutdown(context.Background())
	}()

	logger.Infof("Running on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exited: %v", err)
	}
}
