package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"bookclub/internal/auth"
	"bookclub/internal/config"
	"bookclub/internal/database"
	"bookclub/internal/email"
	"bookclub/internal/logging"
	"bookclub/internal/redisx"
	"bookclub/internal/server"
)

const (
	logMaxBytes   = 10 << 20
	logMaxBackups = 3
	purgeInterval = 1 * time.Hour
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		fileWriter, err := logging.NewRotatingFileWriter(cfg.LogFile, logMaxBytes, logMaxBackups)
		if err != nil {
			log.Fatalf("log setup error: %v", err)
		}
		defer fileWriter.Close()
		logOutput = io.MultiWriter(os.Stdout, fileWriter)
	}
	log.SetOutput(logOutput)
	log.SetFlags(log.LstdFlags | log.LUTC | log.Lshortfile)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer db.Close()

	redisClient, err := redisx.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}
	defer redisClient.Close()

	users := auth.NewUserRepository(db)
	tokens := auth.NewVerificationTokenStore(db)
	sessions := auth.NewSessionCodec(cfg.JWTSecret, cfg.SessionTTL)
	limiter := &auth.RateLimiter{Redis: redisClient}
	mailer := email.NewSMTPSender(cfg.Email)
	hasher := auth.NewBcryptHasher()

	go purgeExpiredTokens(tokens)

	api := server.NewServer(cfg, users, tokens, sessions, limiter, mailer, hasher)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// purgeExpiredTokens reclaims expired verification tokens. Frequency only
// affects storage growth; redemption already excludes expired rows.
func purgeExpiredTokens(tokens *auth.VerificationTokenStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		purged, err := tokens.PurgeExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("token purge failed: %v", err)
			continue
		}
		if purged > 0 {
			log.Printf("purged %d expired verification tokens", purged)
		}
	}
}
