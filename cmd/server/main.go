// main.go
//
// Workshop BOM allocation and document sync service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of benchtop.
// benchtop is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// benchtop is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with benchtop.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/benchtop/internal/app"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/handlers"
	"github.com/localnerve/benchtop/internal/middleware"
	"github.com/sirupsen/logrus"

	_ "github.com/localnerve/benchtop/docs/api" // Swagger docs
)

// @title Benchtop API
// @version 1.0.0
// @description BOM allocation, cost reconciliation and Nextcloud document sync for an electronics workshop
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/benchtop
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	bootLog := logrus.New()
	if err := config.LoadEnvFile(envFilename); err != nil {
		bootLog.Fatalf("Failed to load environment: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatalf("Failed to load configuration: %v", err)
	}
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect database, locks and remote store
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to start services: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("Failed to close connections")
		}
	}()

	// Create Fiber app
	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    12 << 20,
	})

	// Global middleware
	server.Use(recover.New())
	server.Use(logger.New())
	server.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("benchtop")
	prometheus.RegisterAt(server, "/metrics")
	server.Use(prometheus.Middleware)

	// Swagger documentation
	server.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	api := server.Group("/api")
	api.Use(middleware.VersionMiddleware())
	handlers.Routes(api, a, middleware.AuthAdmin(cfg, log))

	// 404 handler
	server.Use(handlers.NotFound)

	if cfg.AuthEnabled() {
		log.Info("Authorizer will be initialized on first authenticated request")
	} else {
		log.Warn("AUTHZ_URL not set, mutating routes are not authenticated")
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("Gracefully shutting down...")
		_ = server.Shutdown()
	}()

	log.WithField("port", cfg.Port).Info("Starting server")
	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Info("Server stopped")
}
