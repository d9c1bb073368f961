package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/config"
	"github.com/iliyamo/vinyl-reservation/internal/database"
	"github.com/iliyamo/vinyl-reservation/internal/handler"
	"github.com/iliyamo/vinyl-reservation/internal/middleware"
	"github.com/iliyamo/vinyl-reservation/internal/queue"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
	"github.com/iliyamo/vinyl-reservation/internal/reservation"
	"github.com/iliyamo/vinyl-reservation/internal/router"
	"github.com/iliyamo/vinyl-reservation/internal/service"
	"github.com/iliyamo/vinyl-reservation/internal/session"
)

func main() {
	// .env is a development convenience; real deployments set the
	// environment directly and the missing file is not an error.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs rate limiting, response caching and the preference
	// store. All three degrade gracefully when it is unreachable.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable: rate limiting, caching and preferences disabled")
	}

	sessionRepo := repository.NewSessionRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	releaseRepo := repository.NewReleaseRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	prefs := session.NewRedisPreferenceStore(rdb, cfg.PrefTTLDays)
	manager := session.NewManager(sessionRepo, prefs, cfg.SessionTTLDays)
	engine := reservation.NewEngine(reservationRepo, service.EventPublisher{}, cfg.ReservationTTL)
	adminCh := reservation.NewAdminChannel(engine, sessionRepo, auditRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background expiry pass: stale holds and lapsed session rows.
	go reservation.NewSweeper(engine, sessionRepo, cfg.SweepInterval).Run(ctx)

	// Back-office consumer for the reservation.changed stream. It
	// maintains its own reconnect loop; a missing broker only costs the
	// event log.
	go func() {
		if err := queue.StartReservationConsumer(); err != nil {
			log.Printf("queue: consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	gate := middleware.SessionGate(middleware.GateConfig{
		Secret:       cfg.TokenSecret,
		CookieName:   cfg.SessionCookie,
		RedirectPath: "/v1/session",
	}, manager)

	router.RegisterRoutes(e)
	router.RegisterCatalog(e, handler.NewCatalogHandler(releaseRepo, reservationRepo),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterSession(e, handler.NewSessionHandler(cfg, manager, prefs), gate)
	router.RegisterReservations(e, handler.NewReservationHandler(engine, releaseRepo), gate)
	router.RegisterAdmin(e, handler.NewAdminHandler(adminCh, auditRepo), gate)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
