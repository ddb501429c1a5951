package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/creditsync/app/controllers"
	"github.com/ManuelReschke/creditsync/internal/pkg/billing"
	"github.com/ManuelReschke/creditsync/internal/pkg/cache"
	"github.com/ManuelReschke/creditsync/internal/pkg/config"
	"github.com/ManuelReschke/creditsync/internal/pkg/database"
	"github.com/ManuelReschke/creditsync/internal/pkg/env"
	"github.com/ManuelReschke/creditsync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/creditsync/internal/pkg/router"
)

// webhookBodyLimit caps request bodies; Stripe events are far smaller.
const webhookBodyLimit = 1 << 20

// Application is the wired HTTP app plus its background jobs.
type Application struct {
	App  *fiber.App
	Jobs *jobqueue.Manager
}

// NewApplication loads configuration, connects storage and wires every
// component. It panics on setup failures the way the database setup does.
func NewApplication() *Application {
	env.SetupEnvFile()

	cfg, err := config.LoadBilling(env.Environ())
	if err != nil {
		panic(err)
	}

	database.SetupDatabase()
	cache.SetupCache()

	catalog, err := billing.NewPriceCatalog(cfg.PriceCatalog)
	if err != nil {
		panic(err)
	}
	verifier, err := billing.NewSignatureVerifier(cfg.Secrets(), cfg.WebhookTolerance)
	if err != nil {
		panic(err)
	}

	opts := []billing.Option{}
	if cfg.StripeSecretKey != "" {
		opts = append(opts, billing.WithLookup(billing.NewStripeLookup(cfg.StripeSecretKey, cfg.LookupTimeout)))
	} else {
		log.Warn("[Server] STRIPE_SECRET_KEY not set, customer and invoice lookups are disabled")
	}
	svc := billing.NewServiceFromDB(database.GetDB(), catalog, opts...)
	lock := billing.NewEventLock(cache.GetClient(), cfg.EventLockTTL)

	app := fiber.New(fiber.Config{
		BodyLimit: webhookBodyLimit,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Dependencies{
		Webhooks:        controllers.NewWebhookController(svc, verifier, lock),
		Credits:         controllers.NewCreditsController(svc),
		MetricsUser:     cfg.MetricsUser,
		MetricsPassword: cfg.MetricsPassword,
	})

	jobs := jobqueue.NewManager(
		jobqueue.ExpirySweepJob(cfg.ExpirySweepCron, svc, cfg.ExpiryGrace),
		jobqueue.CounterFlushJob(cfg.CounterFlushCron),
	)

	log.Infof("[Server] %d prices in catalog, %d webhook secrets configured", len(catalog), len(cfg.Secrets()))
	return &Application{App: app, Jobs: jobs}
}

// Run starts the background jobs and serves HTTP until the listener fails.
func (a *Application) Run() error {
	if err := a.Jobs.Start(); err != nil {
		return err
	}
	defer a.Jobs.Stop()

	return a.App.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000")))
}
