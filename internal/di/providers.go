package di

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
	"github.com/tadams95/4ex.ninja-sub006/internal/client"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/internal/handler/api"
	"github.com/tadams95/4ex.ninja-sub006/internal/pool"
	"github.com/tadams95/4ex.ninja-sub006/internal/prefs"
	"github.com/tadams95/4ex.ninja-sub006/internal/router"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/balance"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/forward"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/notify"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/ratelimit"
	"github.com/tadams95/4ex.ninja-sub006/internal/service/wallets"
	"github.com/tadams95/4ex.ninja-sub006/pkg/config"
	xhttp "github.com/tadams95/4ex.ninja-sub006/pkg/http"
	pkgkafka "github.com/tadams95/4ex.ninja-sub006/pkg/kafka"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
	"github.com/tadams95/4ex.ninja-sub006/pkg/metrics"
	"github.com/tadams95/4ex.ninja-sub006/pkg/server"
	"github.com/tadams95/4ex.ninja-sub006/pkg/storage"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return repository.NopMetrics{}
	}
	return metrics.New()
}

// ProvideClock returns the real wall clock. Tests substitute a mock.
func ProvideClock() clock.Clock {
	return clock.New()
}

// ProvideThresholds maps configured tier cut-offs.
func ProvideThresholds(cfg *config.Config) access.Thresholds {
	return access.Thresholds{
		Premium: cfg.Tiers.Premium,
		Holder:  cfg.Tiers.Holder,
		Whale:   cfg.Tiers.Whale,
	}
}

// ProvideStorage selects the preference storage backend.
func ProvideStorage(cfg *config.Config) (storage.Service, error) {
	switch cfg.Preferences.Storage {
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		return storage.NewFile(cfg.Preferences.Path)
	case "redis":
		return storage.NewRedis(
			storage.WithAddr(cfg.Redis.Addr),
			storage.WithCredentials(cfg.Redis.Password, cfg.Redis.DB),
			storage.WithPrefix(cfg.Redis.Prefix),
		)
	case "none":
		return storage.NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown preferences storage %q", cfg.Preferences.Storage)
	}
}

// ProvidePrefsStore creates the preference store with the configured
// confidence floor as its default.
func ProvidePrefsStore(cfg *config.Config, st storage.Service, th access.Thresholds, log *logger.Logger) *prefs.Store {
	return prefs.New(st, th, cfg.Preferences.MinimumConfidence, log)
}

// ProvideDialer creates the production WebSocket dialer.
func ProvideDialer() repository.Dialer {
	return pool.NewWebSocketDialer()
}

// ProvidePool creates the connection pool.
func ProvidePool(d repository.Dialer, clk clock.Clock, log *logger.Logger, m repository.Metrics) *pool.Pool {
	return pool.New(d, clk, log, m)
}

// ProvideBalanceProvider creates the on-chain balance reader.
func ProvideBalanceProvider(cfg *config.Config, log *logger.Logger) repository.BalanceProvider {
	return balance.New(cfg.Balance.Endpoints, cfg.Balance.TokenAddress,
		cfg.Balance.Decimals, cfg.Balance.Timeout, log)
}

// ProvideNotifier creates the default push notifier.
func ProvideNotifier(log *logger.Logger) repository.Notifier {
	return notify.NewLogNotifier(log)
}

// ProvideAudioPlayer creates the default audio cue player.
func ProvideAudioPlayer(log *logger.Logger) repository.AudioPlayer {
	return notify.NewLogAudio(log)
}

// ProvideWalletDetector creates the configured wallet detector.
func ProvideWalletDetector(cfg *config.Config) repository.WalletDetector {
	return wallets.New(cfg.Wallets)
}

// ProvideLimiter creates the subscribe rate limiter.
func ProvideLimiter(clk clock.Clock) *ratelimit.Limiter {
	return ratelimit.New(clk)
}

// ProvideSinks builds the side-effect sinks. Kafka forwarding is optional.
func ProvideSinks(cfg *config.Config, log *logger.Logger) ([]repository.SignalSink, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return []repository.SignalSink{forward.NewKafkaSink(producer, cfg.Kafka.Topic, log)}, nil
}

// ProvideRouterConfig maps WS settings onto the router.
func ProvideRouterConfig(cfg *config.Config) router.Config {
	return router.Config{
		BaseURL:              cfg.WS.BaseURL,
		ReconnectDelay:       cfg.WS.ReconnectDelay,
		MaxReconnectAttempts: cfg.WS.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.WS.HeartbeatInterval,
		Throttle:             cfg.WS.Throttle,
	}
}

// ProvideRouter creates the notification router.
func ProvideRouter(
	rcfg router.Config,
	p *pool.Pool,
	store *prefs.Store,
	th access.Thresholds,
	bal repository.BalanceProvider,
	push repository.Notifier,
	audio repository.AudioPlayer,
	limiter *ratelimit.Limiter,
	clk clock.Clock,
	log *logger.Logger,
	m repository.Metrics,
	sinks []repository.SignalSink,
) *router.Router {
	return router.New(rcfg, p, store, th, bal, push, audio, limiter, clk, log, m, sinks...)
}

// ProvideClient assembles the public facade.
func ProvideClient(r *router.Router, store *prefs.Store, wd repository.WalletDetector, th access.Thresholds) *client.Client {
	return client.New(r, store, wd, th)
}

// ProvideHandler creates the control API handler.
func ProvideHandler(log *logger.Logger, c *client.Client) xhttp.Handler {
	return api.NewDeliveryEchoHandler(log, c)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	c *client.Client,
	p *pool.Pool,
	handler xhttp.Handler,
	sinks []repository.SignalSink,
) *server.App {
	return server.New(cfg, log, c, p, handler, sinks)
}
