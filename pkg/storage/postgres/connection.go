package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/unwind/pkg/observability"
)

// ConnectionManager manages PostgreSQL primary and read replica connections.
// Writes go to the primary; analytics reads may go to a replica.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // round-robin cursor
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// NewConnectionManager connects to the primary, which must answer a ping,
// and to every reachable replica. Unreachable replicas are logged and
// skipped.
func NewConnectionManager(ctx context.Context, config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	cm := &ConnectionManager{
		config: config,
		logger: logger,
	}

	primary, err := cm.open(ctx, config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	cm.primary = primary

	replicaMaxConns := config.MaxConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}
	for i, url := range config.ReplicaURLs {
		replica, err := cm.open(ctx, url, replicaMaxConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping read replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Database connections established")
	return cm, nil
}

// NewConnectionManagerFromDB wraps an already open pool with no replicas
func NewConnectionManagerFromDB(db *sql.DB) *ConnectionManager {
	return &ConnectionManager{
		primary: db,
		logger:  observability.NopLogger(),
	}
}

func (cm *ConnectionManager) open(ctx context.Context, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cm.config.MinConns)
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	timeout := cm.config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

// Primary returns the primary pool (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection, or the primary
// when none are available
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and replicas. Losing every replica is an
// error; losing some is not.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := append([]*sql.DB(nil), cm.replicas...)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping.
// Analytics reads fall back to the primary once none remain.
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := cm.replicas[:0]
	removed := 0
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}
	cm.replicas = healthy
	return removed
}

// StartHealthCheckRoutine drops unhealthy replicas every interval until ctx
// is cancelled
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer observability.RecoverPanic(cm.logger, "replica health check")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				removed := cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()
				if removed > 0 {
					cm.logger.WithField("removed", removed).Warn("Removed unhealthy read replicas")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ReplicaCount returns the number of live replicas
func (cm *ConnectionManager) ReplicaCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.replicas)
}

// Close closes all pools
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(s string) []string {
	var urls []string
	for _, url := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
