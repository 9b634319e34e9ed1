//go:build wireinject
// +build wireinject

package di

import (
	"ArbPull/pkg/config"
	"ArbPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideInstanceID,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,
		ProvideCache,
		ProvideEVMPool,

		// Repositories
		ProvidePriceReader,
		ProvideExecutor,
		ProvideDisburser,
		ProvideStateStore,
		ProvideTickLease,
		ProvideTickSink,
		ProvideTickHistory,
		ProvideRecordPipeline,
		ProvidePeerSource,

		// Services
		ProvideTracker,
		ProvideNativePrices,
		ProvidePhaseMachine,
		ProvideLedger,
		ProvideStatusBoard,
		ProvideSnapshotPublisher,

		// Use cases
		ProvideHealthChecker,
		ProvideQuoteCollector,
		ProvideScanner,
		ProvideEvaluator,
		ProvideSizer,
		ProvideTickOrchestrator,

		// Delivery
		ProvideStatusHandler,
		ProvideHTTPServer,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
