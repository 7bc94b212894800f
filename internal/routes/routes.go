package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jointvault/jointvault/internal/config"
	"github.com/jointvault/jointvault/internal/custody"
	"github.com/jointvault/jointvault/internal/journal"
	"github.com/jointvault/jointvault/internal/membership"
	"github.com/jointvault/jointvault/internal/middleware"
	"github.com/jointvault/jointvault/internal/notification"
	"github.com/jointvault/jointvault/internal/shares"
	"github.com/jointvault/jointvault/internal/vault"
	"github.com/jointvault/jointvault/internal/venue"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Domain wiring
	gate, err := membership.New(d.Cfg.ParticipantA, d.Cfg.ParticipantB)
	if err != nil {
		return err
	}

	var shareLedger shares.Ledger
	if d.DB != nil {
		shareLedger = shares.NewPostgresLedger(d.DB)
	} else {
		shareLedger = shares.NewInMemory()
	}

	var stateStore vault.StateStore
	if d.DB != nil {
		stateStore = vault.NewPostgresStateStore(d.DB)
	} else {
		stateStore = vault.NewMemoryStateStore()
	}

	var recorder journal.Recorder
	if d.DB != nil {
		recorder = journal.NewPostgresRecorder(d.DB)
	} else {
		recorder = journal.NewInMemory()
	}

	// The asset rail and lending pool are external systems; the simulators
	// stand in for their connectors.
	custodian := custody.NewSimulator()
	pool := venue.NewSimulator(custodian)

	notifier := notification.NewLoggerNotifier(d.Logger)

	vaultSvc, err := vault.NewService(context.Background(), gate, shareLedger,
		custodian, pool, stateStore, recorder, notifier)
	if err != nil {
		return err
	}
	vaultHandler := vault.NewHandler(vaultSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// All vault routes require partner authentication.
	partnerAuth := middleware.PartnerAuth(gate, d.Cfg.PartnerKeyHashA, d.Cfg.PartnerKeyHashB)
	rateLimiter := middleware.PaymentRateLimit(d.Cache, 10)
	protected := api.Group("", partnerAuth)

	RegisterVaultRoutes(protected, vaultHandler, rateLimiter)

	return nil
}
