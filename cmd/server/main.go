package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/ebook-storefront/internal/config"
	"github.com/iliyamo/ebook-storefront/internal/database"
	"github.com/iliyamo/ebook-storefront/internal/handler"
	"github.com/iliyamo/ebook-storefront/internal/metrics"
	"github.com/iliyamo/ebook-storefront/internal/middleware"
	"github.com/iliyamo/ebook-storefront/internal/payment"
	"github.com/iliyamo/ebook-storefront/internal/queue"
	"github.com/iliyamo/ebook-storefront/internal/repository"
	"github.com/iliyamo/ebook-storefront/internal/router"
	"github.com/iliyamo/ebook-storefront/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "digital book storefront API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "consume", Usage: "also run the purchase audit consumer"}},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back schema migrations",
				Subcommands: []*cli.Command{
					{Name: "up", Action: migrateUp},
					{
						Name:   "down",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "steps", Value: 1}},
						Action: migrateDown,
					},
				},
			},
			{
				Name:   "consume",
				Usage:  "append purchase.completed events to an audit log",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "log-dir", Value: "logs"}},
				Action: consume,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("storefront exited")
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if cfg.IsProd() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DB, database.Options{MultiStatements: cfg.DB.AutoMigrate})
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	m := metrics.New()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	books := repository.NewBookRepo(db)
	tags := repository.NewAuthorTagRepo(db)
	ratings := repository.NewRatingRepo(db)
	carts := repository.NewCartRepo(db)
	purchases := repository.NewPurchaseRepo(db, books)
	sales := repository.NewSalesRepo(db)

	gateway := payment.NewStripeGateway(payment.StripeOptions{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})

	var publisher service.EventPublisher
	if cfg.AMQP.Enabled {
		publisher = queue.NewPublisher(cfg.AMQP.URL)
		if c.Bool("consume") {
			consumer := queue.NewConsumer(cfg.AMQP.URL, "logs")
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("purchase consumer stopped")
				}
			}()
		}
	}

	checkout := service.NewCheckoutService(carts, books, gateway, service.CheckoutOptions{
		Currency:       cfg.Checkout.Currency,
		SuccessURL:     cfg.Checkout.SuccessURL,
		CancelURL:      cfg.Checkout.CancelURL,
		GatewayTimeout: cfg.Checkout.GatewayTimeout,
	}, m)
	fulfillment := service.NewFulfillmentService(gateway, books, purchases, carts, publisher, m)

	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb)
	cache := middleware.NewRedisCache(cfg.Cache, rdb)
	checkoutHandler := handler.NewCheckoutHandler(checkout, fulfillment)

	e := router.New(m)
	router.RegisterRoutes(e, handler.NewHealthHandler(db), m)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret, limit)
	router.RegisterPublic(e, handler.NewCatalogHandler(books, tags, ratings), limit, cache)
	router.RegisterWebhooks(e, checkoutHandler)
	router.RegisterCustomer(e, router.CustomerHandlers{
		Cart:     handler.NewCartHandler(carts),
		Checkout: checkoutHandler,
		Library:  handler.NewLibraryHandler(purchases, ratings),
	}, cfg.JWTSecret, limit)
	router.RegisterAdmin(e, handler.NewAdminBookHandler(books), handler.NewAdminSalesHandler(sales), cfg.JWTSecret, limit)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrateUp(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DB, database.Options{MultiStatements: true})
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func migrateDown(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DB, database.Options{MultiStatements: true})
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	steps := c.Int("steps")
	if err := database.Rollback(db, steps); err != nil {
		return err
	}
	log.WithField("steps", steps).Info("migrations rolled back")
	return nil
}

func consume(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = queue.NewConsumer(cfg.AMQP.URL, c.String("log-dir")).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
