//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/tadams95/4ex.ninja-sub006/pkg/config"
	"github.com/tadams95/4ex.ninja-sub006/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient infrastructure
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Domain configuration
		ProvideThresholds,
		ProvideRouterConfig,

		// Preference storage
		ProvideStorage,
		ProvidePrefsStore,

		// Transport
		ProvideDialer,
		ProvidePool,

		// Host capability ports
		ProvideBalanceProvider,
		ProvideNotifier,
		ProvideAudioPlayer,
		ProvideWalletDetector,

		// Delivery core
		ProvideLimiter,
		ProvideSinks,
		ProvideRouter,
		ProvideClient,

		// Control API and application
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
