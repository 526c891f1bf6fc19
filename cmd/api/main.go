package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
	"bazario.org/user-service/internal/cache"
	"bazario.org/user-service/internal/config"
	"bazario.org/user-service/internal/httpapi"
	"bazario.org/user-service/internal/obs"
	"bazario.org/user-service/internal/session"
	"bazario.org/user-service/internal/store/mem"
	"bazario.org/user-service/internal/store/pg"
	"bazario.org/user-service/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	cfg := config.Load()

	if cfg.JWTSecret == "" {
		log.Fatal("missing USERS_AUTH_SECRET")
	}
	codec, err := token.NewCodec(cfg.JWTSecret,
		token.WithIssuer(cfg.Issuer),
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		accounts   auth.AccountStore
		sessions   session.Store
		roles      auth.RoleStore
		activities auth.ActivityStore
		probe      httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer store.DB().Close()
		accounts = store.Accounts()
		sessions = store.Sessions()
		roles = store.Roles()
		activities = store.Activities()
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Println("no USERS_PG_DSN set, using in-memory stores")
		accounts = mem.NewAccounts()
		sessions = mem.NewSessions()
		roles = mem.NewRoles()
		activities = mem.NewActivities()
	}

	opts := []auth.Option{
		auth.WithRoleStore(roles),
		auth.WithActivityStore(activities),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithIssuer(cfg.Issuer),
		auth.WithLockoutPolicy(account.LockoutPolicy{
			Threshold:    cfg.LockoutThreshold,
			LockDuration: cfg.LockoutDuration,
		}),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		opts = append(opts, auth.WithCache(cache.New(rdb)))
	}

	svc, err := auth.NewService(accounts, sessions, codec, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, probe, version,
		httpapi.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, svc, cfg.SweepInterval)

	log.Printf("starting user-service %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("stopped")
}

// sweepSessions periodically flips expired sessions so listings and counts
// stay accurate without waiting for the next token check.
func sweepSessions(ctx context.Context, svc *auth.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpiredSessions(ctx)
			if err != nil {
				log.Printf("sweep sessions: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("swept %d expired sessions", n)
			}
		}
	}
}
