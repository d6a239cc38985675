package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/progression/internal/api"
	"example.com/progression/internal/auth"
	"example.com/progression/internal/bootstrap"
	"example.com/progression/internal/config"
	httptransport "example.com/progression/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("failed to start progression engine: %v", err)
	}
	defer rt.Close()

	handler := api.NewHandler(rt.Engine, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	var routes http.Handler = mux
	if cfg.RateLimitRPS > 0 {
		limiter := httptransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, func(r *http.Request) string {
			if subject := auth.SubjectFromContext(r.Context()); subject != "" {
				return "sub:" + subject
			}
			return ""
		})
		routes = limiter.Middleware(mux)
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.RequestLogger(cors(authMiddleware.Wrap(routes))),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	httptransport.ListenInBackground(server, "progression-api")

	<-shutdownCh
	cancel()
	httptransport.Shutdown(server, 15*time.Second)
}
