package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/claworc/remote-access/internal/auth"
	"github.com/gluk-w/claworc/remote-access/internal/config"
	"github.com/gluk-w/claworc/remote-access/internal/database"
	"github.com/gluk-w/claworc/remote-access/internal/handlers"
	"github.com/gluk-w/claworc/remote-access/internal/jobs"
	"github.com/gluk-w/claworc/remote-access/internal/logging"
	"github.com/gluk-w/claworc/remote-access/internal/metrics"
	"github.com/gluk-w/claworc/remote-access/internal/notify"
	"github.com/gluk-w/claworc/remote-access/internal/session"
	"github.com/gluk-w/claworc/remote-access/internal/sessionaudit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--check-policy" {
		checkPolicy(os.Args[2:])
		return
	}

	config.Load()
	cfg := config.Cfg

	logging.Init(cfg.LogFile())
	defer logging.Close()

	if err := database.Init(cfg.DatabaseFile()); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: ListenAddr=%s, AuthDisabled=%v, ProbeMode=%s, SessionDuration=%s",
		cfg.ListenAddr, cfg.AuthDisabled, cfg.ProbeMode, cfg.SessionDuration)

	// Session manager and its listeners
	mgrCfg := session.ManagerConfig{
		Options:     sessionOptions(cfg),
		MaxDuration: cfg.MaxDuration,
	}
	if cfg.ProbeMode == "tcp" {
		mgrCfg.Options.Faults = session.ThresholdFaults{}
		mgrCfg.ProbeFor = func(ep session.Endpoint) session.Probe {
			return session.NewTCPProbe(ep, cfg.ProbeTimeout)
		}
	}
	sessions := session.NewManager(mgrCfg)
	handlers.Sessions = sessions

	hub := notify.NewHub(notify.DefaultBuffer)
	handlers.Hub = hub
	sessions.OnUpdate(hub.Publish)

	auditor := sessionaudit.NewAuditor(database.DB, cfg.AuditRetentionDays)
	auditor.Start()
	handlers.AuditLog = auditor
	sessions.OnUpdate(auditor.Record)

	recorder := metrics.NewRecorder()
	handlers.Metrics = recorder
	sessions.OnUpdate(recorder.Observe)

	if !cfg.AuthDisabled {
		secret := cfg.JWTSecret
		if secret == "" {
			secret = randomSecret()
			log.Printf("WARNING: REMOTE_ACCESS_JWT_SECRET not set, using a random secret; tokens will not survive a restart")
		}
		tokens, err := auth.NewTokenIssuer(secret, nil)
		if err != nil {
			log.Fatalf("Token issuer: %v", err)
		}
		handlers.Tokens = tokens
		handlers.TokenGrace = cfg.ExpiredRetention
	}

	// Housekeeping
	runner := jobs.NewRunner()
	mustAdd(runner, jobs.Job{
		Name:     "reap-expired-sessions",
		Schedule: "@every 1m",
		Run: func(ctx context.Context) error {
			sessions.ReapExpired(ctx, cfg.ExpiredRetention)
			return nil
		},
	})
	mustAdd(runner, jobs.Job{
		Name:     "purge-session-audit",
		Schedule: "@daily",
		Run: func(context.Context) error {
			_, err := auditor.PurgeOlderThan(0)
			return err
		},
	})
	runner.Start()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)
	r.Handle("/metrics", recorder.Handler())
	r.Route("/api/v1", handlers.Routes)

	// Graceful shutdown
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	runner.Stop()
	sessions.StopAll(shutdownCtx)
	auditor.Stop()
	log.Println("Server stopped")
}

func sessionOptions(cfg config.Settings) session.Options {
	opts := session.DefaultOptions()
	opts.Duration = cfg.SessionDuration
	opts.ExtendBy = cfg.ExtendDuration
	opts.ClockTick = cfg.ClockTick
	opts.SamplerInterval = cfg.SamplerInterval
	opts.Faults = session.RandomFaults{Degrade: cfg.DegradeProbability, Loss: cfg.LossProbability}
	opts.AutoReconnectDelay = cfg.AutoReconnectDelay
	opts.ManualReconnectDelay = cfg.ManualReconnectDelay
	opts.Output = session.RandomOutput{P: cfg.OutputProbability}
	opts.Terminal.TickInterval = cfg.TerminalTick
	opts.Terminal.LogCapacity = cfg.TerminalLogCapacity
	opts.Framebuffer.TickInterval = cfg.FramebufferTick
	opts.Framebuffer.LogCapacity = cfg.FramebufferLogCapacity
	opts.CommandRate = rate.Limit(cfg.CommandRate)
	opts.CommandBurst = cfg.CommandBurst
	return opts
}

func mustAdd(r *jobs.Runner, job jobs.Job) {
	if err := r.Add(job); err != nil {
		log.Fatalf("Schedule %s: %v", job.Name, err)
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Generate secret: %v", err)
	}
	return hex.EncodeToString(b)
}

// checkPolicy validates a session policy file against the current
// environment and exits non-zero if it is unusable.
func checkPolicy(args []string) {
	fs := flag.NewFlagSet("check-policy", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: remote-access --check-policy <file>")
		os.Exit(2)
	}

	p, err := config.LoadPolicy(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Policy error: %v\n", err)
		os.Exit(1)
	}
	settings, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	p.Apply(&settings)
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid policy:\n%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Policy %s is valid (duration=%s, extend=%s, sampler=%s)\n",
		fs.Arg(0), settings.SessionDuration, settings.ExtendDuration, settings.SamplerInterval)
}
