package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStatsCollector samples pgxpool statistics into the db gauges.
type PoolStatsCollector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
}

// NewPoolStatsCollector creates a collector for pool
func NewPoolStatsCollector(pool *pgxpool.Pool, logger *slog.Logger) *PoolStatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolStatsCollector{
		pool:   pool,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start samples immediately and then every interval until Stop.
func (c *PoolStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
	c.logger.Info("pool stats collector started", "interval", interval.String())
}

// Stop ends sampling. It is safe to call more than once.
func (c *PoolStatsCollector) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *PoolStatsCollector) collect() {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	DBConnectionsOpen.Set(float64(stat.TotalConns()))
	DBConnectionsInUse.Set(float64(stat.AcquiredConns()))
}
