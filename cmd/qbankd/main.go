package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/mindengage-qbank/internal/api/http"
	auth "github.com/mind-engage/mindengage-qbank/internal/auth/middleware"
	"github.com/mind-engage/mindengage-qbank/internal/config"
	"github.com/mind-engage/mindengage-qbank/internal/db"
	_ "github.com/mind-engage/mindengage-qbank/internal/formats/cloze"
	_ "github.com/mind-engage/mindengage-qbank/internal/formats/moodle"
	_ "github.com/mind-engage/mindengage-qbank/internal/formats/qti"
	"github.com/mind-engage/mindengage-qbank/internal/grading"
	"github.com/mind-engage/mindengage-qbank/internal/mathrender"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
	"github.com/mind-engage/mindengage-qbank/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.DefaultLogger.SetLevel(log.ParseLevel(cfg.LogLevel))

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatal().Err(err).Msg("db driver")
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}
	defer dbh.Close()

	// --- Auth ---
	accounts := auth.NewSQLAccounts(dbh)
	if cfg.AdminUser != "" && cfg.AdminPassHash != "" {
		if err := accounts.Upsert(ctx, auth.Account{Username: cfg.AdminUser, PassHash: cfg.AdminPassHash, Role: "admin"}); err != nil {
			log.Fatal().Err(err).Msg("seed admin account")
		}
	}
	authSvc := auth.NewAuthService(cfg.JWTSecret, cfg.TokenTTL)

	// --- Collaborators ---
	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store")
	}
	deps := api.Deps{Attachments: bs, Strict: cfg.StrictMarkup, MaxUpload: cfg.MaxUpload}
	if cfg.MathCommand != "" {
		cmd := mathrender.NewCommand(cfg.MathCommand, cfg.MathDir)
		cmd.Timeout = cfg.MathTimeout
		renders := mathrender.NewSQLStore(dbh)
		deps.NewMath = func() richtext.MathRenderer {
			return mathrender.NewCache(cmd, mathrender.WithStore(renders))
		}
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition", "X-Question-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, accounts))

	// Protected API (JWT → role from accounts → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(accounts, false))
		api.Mount(pr, deps, grading.NewDefaultGrader(), bs)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("db", string(driver)).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
