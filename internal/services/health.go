package services

import (
	"context"
	"fmt"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Health statuses. A failing optional dependency degrades the service, a
// failing database makes it unhealthy.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthDeps are the optional dependencies probed by HealthCheck, nil
// entries are reported as disabled
type HealthDeps struct {
	Nextcloud Pinger
	Redis     Pinger
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Nextcloud    string            `json:"nextcloud"`
	Redis        string            `json:"redis"`
	Authorizer   string            `json:"authorizer"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(status, dependency string, err error) {
	if r.Status != HealthUnhealthy {
		r.Status = status
	}
	r.Details[dependency+"_error"] = err.Error()
	msg := fmt.Sprintf("%s check failed: %v", dependency, err)
	if r.ErrorMessage == "" {
		r.ErrorMessage = msg
	} else {
		r.ErrorMessage += "; " + msg
	}
}

// HealthCheck performs a comprehensive health check of the service
func HealthCheck(ctx context.Context, cfg *config.Config, db *gorm.DB, deps HealthDeps, logger logrus.FieldLogger) HealthCheckResult {
	result := HealthCheckResult{
		Status:     HealthHealthy,
		Nextcloud:  "disabled",
		Redis:      "disabled",
		Authorizer: "disabled",
		Details:    make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.fail(HealthUnhealthy, "database", err)
	} else if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		result.fail(HealthUnhealthy, "database", err)
	} else {
		result.Database = "ok"
		result.Details["database_type"] = cfg.DBType
		result.Details["database_name"] = cfg.DBDatabase
	}

	if deps.Nextcloud != nil {
		if err := deps.Nextcloud.Ping(ctx); err != nil {
			result.Nextcloud = "unreachable"
			result.fail(HealthDegraded, "nextcloud", err)
		} else {
			result.Nextcloud = "ok"
			result.Details["nextcloud_url"] = cfg.NextcloudURL
		}
	}

	if deps.Redis != nil {
		if err := deps.Redis.Ping(ctx); err != nil {
			result.Redis = "unreachable"
			result.fail(HealthDegraded, "redis", err)
		} else {
			result.Redis = "ok"
		}
	}

	if cfg.AuthEnabled() {
		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			result.fail(HealthDegraded, "authorizer", err)
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = cfg.AuthzURL
		}
	}

	if result.Status == HealthHealthy {
		logger.Debug("Health check passed - all systems operational")
	} else {
		logger.WithField("status", result.Status).Warn(result.ErrorMessage)
	}

	return result
}
