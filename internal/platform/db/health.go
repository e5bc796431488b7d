package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// HealthReport is the body served by HealthHandler.
type HealthReport struct {
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	SchemaVersion int64      `json:"schema_version,omitempty"`
	Pool          *PoolStats `json:"pool"`
}

// VersionSource reports the applied schema version; *Migrator satisfies it.
type VersionSource interface {
	Version(ctx context.Context) (int64, error)
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler pings the database and reports pool statistics together with
// the schema version when versions is non-nil.
func HealthHandler(pool *pgxpool.Pool, versions VersionSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := &HealthReport{Status: "healthy", Pool: GetPoolStats(pool)}
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, unhealthy(report, err))
		}
		if versions != nil {
			v, err := versions.Version(ctx)
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, unhealthy(report, err))
			}
			report.SchemaVersion = v
		}
		return c.JSON(http.StatusOK, report)
	}
}

func unhealthy(report *HealthReport, err error) *HealthReport {
	report.Status = "unhealthy"
	report.Error = err.Error()
	report.Pool.Healthy = false
	return report
}
