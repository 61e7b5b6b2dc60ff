// Package app はリポジトリ、ユースケース、gRPC ハンドラーを結線します。
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/adapters/grpc/handler"
	"github.com/ogurasousui/checkin-ledger/internal/adapters/repository/postgres"
	"github.com/ogurasousui/checkin-ledger/internal/core/catalog"
	"github.com/ogurasousui/checkin-ledger/internal/core/changes"
	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/finalization"
	"github.com/ogurasousui/checkin-ledger/internal/core/management"
	"github.com/ogurasousui/checkin-ledger/internal/core/principal"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/teammate"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
	"github.com/ogurasousui/checkin-ledger/internal/platform/authz"
	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
	pg "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
	"github.com/ogurasousui/checkin-ledger/internal/platform/metrics"
)

// App は結線済みのユースケース群です。
type App struct {
	pool *pgxpool.Pool

	Ledger       *tenure.Ledger
	CheckIns     *checkin.Service
	Snapshots    *snapshot.Store
	Builder      *snapshot.Builder
	Bootstrapper *snapshot.Bootstrapper
	Changes      *changes.Service
	Executor     *changes.Executor
	Coordinator  *finalization.Coordinator
	Management   *management.Service
	Teammates    *teammate.Service
	Catalog      *catalog.Service
	Principals   *principal.Service
	Authz        *authz.Service
	Handler      *handler.CheckInHandler
}

// New はデータベースへ接続し、全てのコンポーネントを構築します。
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, recorder *metrics.Recorder) (*App, error) {
	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database pool: %w", err)
	}

	a, err := build(pool, cfg, logger, recorder)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func build(pool *pgxpool.Pool, cfg *config.Config, logger logrus.FieldLogger, recorder *metrics.Recorder) (*App, error) {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	tx := pg.NewTransactionManager(pool, pg.WithTxLogger(logger))

	tenureRepo := postgres.NewTenureRepository(pool)
	checkInRepo := postgres.NewCheckInRepository(pool)
	snapshotRepo := postgres.NewSnapshotRepository(pool)
	principalRepo := postgres.NewPrincipalRepository(pool)
	teammateRepo := postgres.NewTeammateRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	milestoneRepo := postgres.NewMilestoneRepository(pool)

	a := &App{pool: pool}

	a.Ledger = tenure.NewLedger(tenureRepo, nil, tx,
		tenure.WithLogger(logger),
		tenure.WithObserver(recorder),
	)
	a.Snapshots = snapshot.NewStore(snapshotRepo, nil, tx,
		snapshot.WithLogger(logger),
		snapshot.WithObserver(recorder),
	)
	a.Builder = snapshot.NewBuilder(tenureRepo, checkInRepo, milestoneRepo)

	a.Principals = principal.NewService(principalRepo, nil, principal.SystemActorConfig{
		Email: cfg.SystemActor.Email,
		Name:  cfg.SystemActor.Name,
	}, logger)
	a.Catalog = catalog.NewService(catalogRepo, nil, tx)
	a.Teammates = teammate.NewService(teammateRepo, a.Ledger, a.Builder, a.Snapshots, nil, tx, logger)
	a.Bootstrapper = snapshot.NewBootstrapper(a.Snapshots, snapshotRepo, a.Builder, a.Teammates, a.Catalog, a.Principals, tx, logger)

	a.CheckIns = checkin.NewService(checkInRepo, nil, tx, logger)

	opts := []finalization.Option{
		finalization.WithLogger(logger),
		finalization.WithObserver(recorder),
	}
	if cfg.Finalization.DefaultEnergyPercentage != nil {
		opts = append(opts, finalization.WithDefaultEnergy(*cfg.Finalization.DefaultEnergyPercentage))
	}
	a.Coordinator = finalization.NewCoordinator(checkInRepo, a.Ledger, a.Builder, a.Snapshots, a.Teammates, nil, tx, opts...)

	a.Changes = changes.NewService(a.Snapshots, changes.NewDetector())
	a.Executor = changes.NewExecutor(checkInRepo, a.Ledger, nil, tx, logger)
	a.Management = management.NewService(a.Teammates, a.Ledger, milestoneRepo, a.Builder, a.Snapshots, nil, tx, logger)

	authzSvc, err := authz.NewService(cfg.Authz.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize authz: %w", err)
	}
	a.Authz = authzSvc

	a.Handler = handler.NewCheckInHandler(handler.Dependencies{
		Finalizer:    a.Coordinator,
		Energy:       a.Management,
		CheckIns:     a.CheckIns,
		Sides:        a.CheckIns,
		Snapshots:    a.Snapshots,
		Differ:       a.Changes,
		Executor:     a.Executor,
		Bootstrapper: a.Bootstrapper,
		Policy:       a.Authz,
	})

	return a, nil
}

// Close はデータベース接続を解放します。
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
