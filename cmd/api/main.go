package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "adminauth/api/swagger" // swagger docs
	"adminauth/internal/config"
	"adminauth/internal/database"
	"adminauth/internal/handler"
	"adminauth/internal/mail"
	"adminauth/internal/metrics"
	"adminauth/internal/middleware"
	"adminauth/internal/otp"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/internal/service"
	"adminauth/internal/token"
	"adminauth/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// @title           Admin Auth API
// @version         1.0
// @description     Identity, session and role-based access control service.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	gin.SetMode(cfg.GinMode)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connected and migrated.")

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	txManager := repository.NewTransactionManager(db)
	auditService := service.NewAuditService(repository.NewAuditRepository(db))

	seeder := rbac.NewSeeder(permRepo, roleRepo, txManager)
	if _, err := service.SeedAccessControl(ctx, seeder, cfg.DefaultRole, auditService); err != nil {
		log.Fatalf("Seeding access control failed: %v", err)
	}

	stores, err := newStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Token stores: %v", err)
	}
	defer stores.Close()

	issuer, err := token.NewIssuer(token.NewCodec(), token.IssuerConfig{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("Token issuer: %v", err)
	}
	verification, err := otp.NewManager(otp.PurposeEmailVerification, cfg.OTPSecret, stores.verification)
	if err != nil {
		log.Fatalf("OTP manager: %v", err)
	}
	reset, err := otp.NewManager(otp.PurposePasswordReset, cfg.OTPSecret, stores.reset)
	if err != nil {
		log.Fatalf("OTP manager: %v", err)
	}

	mailer, closeMailer, err := newMailer(cfg)
	if err != nil {
		log.Fatalf("Mailer: %v", err)
	}
	asyncMailer := mail.NewAsync(mailer, 30*time.Second)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	cache := rbac.NewPermissionCache(cfg.PermissionCacheTTL)
	guard := rbac.NewGuard(roleRepo, cache)

	authService := service.NewAuthService(service.AuthDeps{
		Users:        userRepo,
		Roles:        roleRepo,
		Tx:           txManager,
		Issuer:       issuer,
		Blacklist:    stores.blacklist,
		Verification: verification,
		Reset:        reset,
		Mailer:       asyncMailer,
		Hasher:       service.NewPasswordHasher(cfg.BcryptCost),
		Audit:        auditService,
		Permissions:  guard,
		Notifier:     wsHub,
		DefaultRole:  cfg.DefaultRole,
		AppURL:       cfg.AppURL,
	})
	userService := service.NewUserService(userRepo, roleRepo, auditService, wsHub)
	roleService := service.NewRoleService(roleRepo, permRepo, userRepo, txManager, cache, auditService, wsHub)

	limiter := middleware.NewRateLimiter(cfg.AuthRatePerSecond, cfg.AuthRateBurst)
	go limiter.Run(ctx)

	sweeper := otp.NewSweeper(cfg.SweepInterval).
		Add("verification", verification).
		Add("reset", reset).
		Add("blacklist", revocationGauge{stores.blacklist})
	go sweeper.Run(ctx)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:        authService,
		Users:       userService,
		Roles:       roleService,
		Audit:       auditService,
		Issuer:      issuer,
		Guard:       guard,
		Hub:         wsHub,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := asyncMailer.Wait(shutdownCtx); err != nil {
		log.Printf("Pending mail not delivered: %v", err)
	}
	closeMailer()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Println("Stopped")
}

type tokenStores struct {
	blacklist    token.Blacklist
	verification otp.RecordStore
	reset        otp.RecordStore
	redis        *redis.Client
}

func (s *tokenStores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// newStores picks where revoked tokens and challenge records live. Memory stores are
// per process, so several replicas need STORE_DRIVER=redis.
func newStores(ctx context.Context, cfg *config.Config) (*tokenStores, error) {
	if cfg.StoreDriver != config.StoreRedis {
		if cfg.IsRelease() {
			log.Println("WARNING: STORE_DRIVER=memory; logout and single-use codes are not shared across instances and are lost on restart")
		}
		return &tokenStores{
			blacklist:    token.NewMemoryBlacklist(),
			verification: otp.NewMemoryRecordStore(),
			reset:        otp.NewMemoryRecordStore(),
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Printf("Using Redis at %s for token state", cfg.RedisAddr)
	return &tokenStores{
		blacklist:    token.NewRedisBlacklist(client, ""),
		verification: otp.NewRedisRecordStore(client, otp.PurposeEmailVerification),
		reset:        otp.NewRedisRecordStore(client, otp.PurposePasswordReset),
		redis:        client,
	}, nil
}

func newMailer(cfg *config.Config) (mail.Mailer, func(), error) {
	switch cfg.MailDriver {
	case config.MailSMTP:
		return mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom), func() {}, nil
	case config.MailAMQP:
		q, err := mail.NewQueueMailer(cfg.AMQPURL, cfg.MailQueue)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return mail.NewLogMailer(), func() {}, nil
	}
}

// revocationGauge drops expired blacklist entries where the store needs it and
// reports the remaining size.
type revocationGauge struct {
	blacklist token.Blacklist
}

func (g revocationGauge) CleanupExpired(ctx context.Context) (int, error) {
	removed := 0
	if c, ok := g.blacklist.(otp.Cleaner); ok {
		n, err := c.CleanupExpired(ctx)
		if err != nil {
			return 0, err
		}
		removed = n
	}
	if size, err := g.blacklist.Size(ctx); err == nil {
		metrics.RevokedTokens(size)
	}
	return removed, nil
}
