package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/inamate/nestbox/internal/auth"
	"github.com/inamate/nestbox/internal/collab"
	"github.com/inamate/nestbox/internal/config"
	"github.com/inamate/nestbox/internal/engine"
	mw "github.com/inamate/nestbox/internal/middleware"
	"github.com/inamate/nestbox/internal/session"
	"github.com/inamate/nestbox/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := snapshot.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("open snapshot store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	authService, err := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		slog.Error("create auth service", "error", err)
		os.Exit(1)
	}

	sessionService := session.NewService(repo, authService)
	sessionHandler := session.NewHandler(sessionService)

	hub := collab.NewHub(
		sessionService.LoadDocument,
		sessionService.SaveDocument,
		engine.WithCanvas(cfg.CanvasWidth, cfg.CanvasHeight),
		engine.WithRectSize(cfg.RectSize),
		engine.WithMaxAddRandom(cfg.MaxAddRandom),
	)

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Session creation (public, returns the session token)
	r.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.Middleware)
	api.HandleFunc("/sessions/{sessionId}/snapshots/latest", sessionHandler.GetLatestSnapshot).Methods("GET", "OPTIONS")

	// WebSocket endpoint
	r.HandleFunc("/ws/session/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, hub, authService, cfg.Origins())
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop hub first to save all unsaved documents
		slog.Info("saving all documents...")
		hub.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, hub *collab.Hub, authSvc *auth.Service, origins []string) {
	sessionID := mux.Vars(r)["sessionId"]

	// Auth via query param, browsers cannot set headers on websocket requests
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if err := authSvc.Authorize(token, sessionID); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := collab.NewClient(hub, conn, sessionID, clientID)

	ctx := r.Context()
	if err := hub.Register(ctx, client); err != nil {
		slog.Warn("join session", "session", sessionID, "error", err)
		conn.Close(websocket.StatusPolicyViolation, "session unavailable")
		return
	}

	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
