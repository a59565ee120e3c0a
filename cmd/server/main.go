package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	accountrepo "github.com/DowellHd/smart-stock-auth/internal/account/repository"
	"github.com/DowellHd/smart-stock-auth/internal/audit"
	auditproducer "github.com/DowellHd/smart-stock-auth/internal/audit/producer"
	auditrepo "github.com/DowellHd/smart-stock-auth/internal/audit/repository"
	authsvc "github.com/DowellHd/smart-stock-auth/internal/auth/service"
	"github.com/DowellHd/smart-stock-auth/internal/challenge"
	"github.com/DowellHd/smart-stock-auth/internal/config"
	"github.com/DowellHd/smart-stock-auth/internal/db"
	"github.com/DowellHd/smart-stock-auth/internal/db/migrate"
	"github.com/DowellHd/smart-stock-auth/internal/email"
	"github.com/DowellHd/smart-stock-auth/internal/lockout"
	"github.com/DowellHd/smart-stock-auth/internal/mfa"
	mfarepo "github.com/DowellHd/smart-stock-auth/internal/mfa/repository"
	"github.com/DowellHd/smart-stock-auth/internal/policy/engine"
	"github.com/DowellHd/smart-stock-auth/internal/security"
	sessionrepo "github.com/DowellHd/smart-stock-auth/internal/session/repository"
	sessionsvc "github.com/DowellHd/smart-stock-auth/internal/session/service"
	"github.com/DowellHd/smart-stock-auth/internal/telemetry/otel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	pg, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "smart-stock-auth", cfg.Env != "production")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()

	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return fmt.Errorf("jwt private key: %w", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("jwt public key: %w", err)
	}
	codec := security.NewTokenCodec(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), time.Hour)

	hasher, err := security.NewPasswordHasher(security.Argon2Params{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}

	boxKey, err := secretBoxKey(cfg.MFASecretKey)
	if err != nil {
		return fmt.Errorf("mfa secret key: %w", err)
	}
	box, err := security.NewSecretBox(boxKey)
	if err != nil {
		return fmt.Errorf("mfa secret box: %w", err)
	}

	var challenges challenge.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		challenges = challenge.NewRedisStore(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory challenge store (single instance only)")
		challenges = challenge.NewMemoryStore()
	}

	stream, err := auditproducer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaSecurityTopic, logger)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	var auditStream auditproducer.Producer
	if stream != nil {
		auditStream = stream
		defer func() { _ = stream.Close() }()
	}

	var mail email.Sender
	if cfg.SMTPAddr != "" {
		mail = email.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom, cfg.PublicBaseURL)
	} else {
		mail = email.NewLogSender(logger)
	}

	loginPolicy, err := loadLoginPolicy(cfg.LoginPolicy)
	if err != nil {
		return fmt.Errorf("login policy: %w", err)
	}
	admission := engine.NewLoginEvaluator(loginPolicy, logger)
	if err := admission.HealthCheck(ctx); err != nil {
		return fmt.Errorf("login policy: %w", err)
	}

	accounts := accountrepo.NewPostgresRepository(pg)
	sessions := sessionsvc.NewRegistry(sessionrepo.NewPostgresRepository(pg), cfg.RefreshTTL(), logger)
	mfaEngine := mfa.NewEngine(mfarepo.NewPostgresRepository(pg), box, cfg.MFAIssuer)
	lockoutPolicy := lockout.NewPolicy(accounts, cfg.LockoutThreshold, cfg.LockoutWindow(), logger)
	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(pg), auditStream, nil, logger)

	orchestrator := authsvc.New(
		accounts, sessions, mfaEngine, lockoutPolicy, challenges,
		mail, auditor, admission, hasher, codec, logger,
	)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(s, healthSrv)
	// The caller-facing auth API is a separate transport deployment over the
	// orchestrator; this process hosts the core and its health endpoint.
	_ = orchestrator
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("shutting down")
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.GracefulStop()
	logger.Info("stopped")
	return nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// secretBoxKey accepts a 64-char hex string or a raw 32-byte string.
func secretBoxKey(s string) ([]byte, error) {
	if len(s) == 64 {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	if len(s) != 32 {
		return nil, errors.New("MFA_SECRET_KEY must be 32 bytes (or 64 hex chars)")
	}
	return []byte(s), nil
}

// loadLoginPolicy reads the Rego override from a path, or passes inline Rego
// through as-is. Empty keeps the built-in default policy.
func loadLoginPolicy(src string) (string, error) {
	if src == "" {
		return "", nil
	}
	if _, err := os.Stat(src); err == nil {
		b, err := os.ReadFile(src)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return src, nil
}
