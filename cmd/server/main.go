package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"select-plus/internal/admin"
	"select-plus/internal/config"
	"select-plus/internal/demo"
	"select-plus/internal/engine"
	"select-plus/internal/instrument"
	"select-plus/internal/metadata"
	"select-plus/internal/resource"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s, db: %s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("Database connected (%s)", db.Driver())

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Create registry and load metadata
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, db.DB, reg); err != nil {
		log.Printf("WARN: Failed to load metadata: %v", err)
	}
	catalog := admin.NewCatalog(db, reg)

	// 5. Demo schema, seed rows and resources
	resources := resource.NewRegistry()
	if cfg.Demo.Seed {
		if err := demo.Install(ctx, catalog); err != nil {
			log.Fatalf("Failed to install demo schema: %v", err)
		}
		if err := demo.Seed(ctx, db); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		resources.Register(demo.People(cfg.Demo.CoffeeURL))
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Instrumentation
	if cfg.Instrumentation.Enabled {
		buffer := instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buffer.Stop()
		app.Use(instrument.Middleware(instrument.NewBufferedInstrumenter(buffer, cfg.Instrumentation.SamplingRate)))
		go instrument.RunCleanup(ctx, db.DB, db.Dialect, cfg.Instrumentation.RetentionDays, time.Hour)
	}

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Event routes
	events := instrument.NewEventHandler(db.DB, db.Dialect)
	app.Get("/api/_events", events.List)
	app.Get("/api/_events/trace/:traceId", events.GetTrace)

	// 10. Admin routes
	admin.RegisterAdminRoutes(app, admin.NewHandler(db, reg, catalog, resources))

	// 11. Options, fields and record routes
	settings := selectplus.Settings{
		DefaultLabel: cfg.SelectPlus.DefaultLabel,
		OptionLimit:  cfg.SelectPlus.OptionLimit,
	}
	engine.RegisterRoutes(app, engine.NewHandler(db, reg, resources, settings))

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
