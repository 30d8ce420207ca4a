package db

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	Ready         bool  `json:"ready"`
}

// Dependency is an extra backing service reported by the health endpoint, such as the
// shared stage cache.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(c *Client) *PoolStats {
	stat := c.pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		Ready:         c.Ready(),
	}
}

// HealthHandler reports store readiness and the state of each dependency. The
// intake flow keeps working from its caches when the store is down, so an
// unreachable database yields "degraded" rather than a 503.
func HealthHandler(c *Client, extra ...Dependency) echo.HandlerFunc {
	return func(ec echo.Context) error {
		ctx, cancel := context.WithTimeout(ec.Request().Context(), 5*time.Second)
		defer cancel()

		deps := map[string]string{}
		status := "ok"

		if err := c.Ping(ctx); err != nil {
			deps["database"] = err.Error()
			status = "degraded"
		} else {
			deps["database"] = "ok"
		}
		for _, p := range extra {
			if err := p.Ping(ctx); err != nil {
				deps[p.Name] = err.Error()
				status = "degraded"
				continue
			}
			deps[p.Name] = "ok"
		}

		return ec.JSON(http.StatusOK, map[string]interface{}{
			"status":       status,
			"dependencies": deps,
			"pool":         GetPoolStats(c),
		})
	}
}
