package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/threeway/internal/audit"
	"github.com/odyssey-erp/threeway/internal/platform/db"
	"github.com/odyssey-erp/threeway/internal/platform/lock"
	"github.com/odyssey-erp/threeway/internal/procurement"
	"github.com/odyssey-erp/threeway/internal/settings"
	"github.com/odyssey-erp/threeway/internal/shared"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

// Services bundles the domain services shared by the API and the worker.
type Services struct {
	Procurement *procurement.Service
	ThreeWay    *threeway.Service
	Audit       *audit.Service
}

// NewServices wires repositories, the settings cache and locks into services.
// rdb may be nil, in which case locking and caching are disabled.
func NewServices(cfg *Config, pools db.Pools, rdb *redis.Client, logger *slog.Logger, registerer prometheus.Registerer) (*Services, error) {
	defaults, err := cfg.DefaultTolerance()
	if err != nil {
		return nil, err
	}

	var locker *lock.Locker
	if rdb != nil {
		locker = lock.New(rdb, lock.Config{TTL: cfg.LockTTL, Logger: logger})
	}
	store := settings.NewCache(settings.NewRepository(pools.Primary), rdb, cfg.SettingsCacheTTL, logger)

	procurementService := procurement.NewService(
		procurement.NewRepository(pools.Primary),
		locker,
		shared.NewIdempotencyStore(pools.Primary),
		logger,
	)
	threewayService := threeway.NewService(
		threeway.NewRepository(pools.Primary, pools.Replica),
		threeway.NewPolicy(store, defaults, logger),
		store,
		locker,
		logger,
		threeway.ServiceConfig{
			BulkConcurrency: cfg.BulkConcurrency,
			SettingsRoles:   cfg.SettingsRoles,
			Metrics:         threeway.NewMetrics(registerer),
		},
	)
	return &Services{
		Procurement: procurementService,
		ThreeWay:    threewayService,
		Audit:       audit.NewService(audit.NewRepository(pools.Primary, pools.Replica)),
	}, nil
}
