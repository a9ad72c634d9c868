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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/database"
	"github.com/localnerve/benchtop/internal/nextcloud"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if err := config.LoadEnvFile(envFilename); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	os.Exit(run(cfg, log))
}

func run(cfg *config.Config, log *logrus.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return 1
	}
	defer database.Close(db)

	// Probe the optional dependencies without the startup side effects
	var deps services.HealthDeps
	if cfg.NextcloudURL != "" {
		timeout := time.Duration(cfg.NextcloudTimeoutSeconds) * time.Second
		deps.Nextcloud = nextcloud.NewWebDAVStore(cfg.NextcloudURL, cfg.NextcloudUser, cfg.NextcloudPassword, timeout)
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		deps.Redis = services.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Perform health check
	result := services.HealthCheck(ctx, cfg, db, deps, log)

	// Output result as JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Errorf("Failed to marshal health check result: %v", err)
		return 1
	}
	fmt.Println(string(output))

	// Degraded still serves requests
	if result.Status == services.HealthUnhealthy {
		return 1
	}
	return 0
}
