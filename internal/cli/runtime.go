package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/config"
	"github.com/roach88/otcore/internal/logging"
	"github.com/roach88/otcore/internal/notify"
	"github.com/roach88/otcore/internal/pipeline"
	"github.com/roach88/otcore/internal/schema"
	"github.com/roach88/otcore/internal/store"
)

// flagKeys maps command flags onto config keys. Flags only override
// when set on the command line.
var flagKeys = map[string]string{
	"store":     config.KeyStoreDriver,
	"dsn":       config.KeyStoreDSN,
	"listen":    config.KeyListen,
	"log-level": config.KeyLogLevel,
	"notify":    config.KeyNotifyMode,
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "", "store driver (memory|sqlite|postgres|mysql)")
	cmd.Flags().String("dsn", "", "store data source name; a file path for sqlite")
	cmd.Flags().String("log-level", "", "log level (debug|info|warn|error)")
}

// loadConfig reads the config file and environment, then applies
// command-line overrides.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	v := config.New(opts.ConfigPath)
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	if opts.Verbose {
		v.Set(config.KeyLogLevel, "debug")
	}
	return config.FromViper(v)
}

// runtime holds the components every store-backed command needs.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
}

func openRuntime(cmd *cobra.Command, opts *RootOptions) (*runtime, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, store.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger.Debug("runtime ready",
		zap.String("config", cfg.File),
		zap.String("store", cfg.Store.Driver))
	return &runtime{cfg: cfg, logger: logger, store: st}, nil
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("close store", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

// pipeline builds a commit pipeline from the pipeline config section.
func (rt *runtime) pipeline(pub pipeline.Publisher) (*pipeline.Pipeline, error) {
	pc := rt.cfg.Pipeline
	opts := []pipeline.Option{
		pipeline.WithMaxAttempts(pc.MaxAttempts),
		pipeline.WithMaxStorageRetries(pc.StorageRetries),
		pipeline.WithStorageBackoff(pc.BackoffInitial, pc.BackoffMax),
		pipeline.WithLogger(rt.logger),
	}
	if pc.ObjectLocks {
		opts = append(opts, pipeline.WithObjectLocks())
	}
	if pc.ValidateSchemas {
		reg, err := schema.New()
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		opts = append(opts, pipeline.WithSchema(reg))
	}
	if pub != nil {
		opts = append(opts, pipeline.WithPublisher(pub))
	}
	return pipeline.New(rt.store, opts...), nil
}

// notifications is the notifier stack for one serving process.
type notifications struct {
	notifier  notify.Notifier
	publisher notify.Publisher

	// runs are long-lived loops started alongside the server.
	runs []func(context.Context) error
	// closers run after the loops stop, in order.
	closers []func()
}

func (n *notifications) Close() {
	for _, c := range n.closers {
		c()
	}
}

// notifications assembles the notifier: an in-process hub (push) or a
// log poller (poll), a Redis relay when redis.addrs is set and a Kafka
// publisher when kafka.brokers is set.
func (rt *runtime) notifications() (*notifications, error) {
	cfg := rt.cfg
	n := &notifications{}
	logOpt := notify.WithLogger(rt.logger)

	var pubs []notify.Publisher
	switch cfg.Notify.Mode {
	case config.NotifyPoll:
		poller := notify.NewPoller(rt.store, logOpt, notify.WithInterval(cfg.Notify.PollInterval))
		n.notifier = poller
		if len(cfg.Redis.Addrs) > 0 {
			rt.logger.Warn("redis relay ignored in poll mode")
		}
	default:
		hub := notify.NewHub(rt.store, logOpt)
		n.runs = append(n.runs, hub.Run)
		n.notifier = hub
		if len(cfg.Redis.Addrs) > 0 {
			client := redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs:    cfg.Redis.Addrs,
				Password: cfg.Redis.Password,
			})
			relay := notify.NewRedisRelay(client, hub, logOpt)
			n.runs = append(n.runs, relay.Run)
			n.closers = append(n.closers, func() { _ = client.Close() })
			n.notifier = relay
		}
	}
	pubs = append(pubs, n.notifier)

	if len(cfg.Kafka.Brokers) > 0 {
		kc := sarama.NewConfig()
		kc.Producer.Return.Successes = true
		kc.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kc)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		kp := notify.NewKafkaPublisher(producer, cfg.Kafka.Topic, notify.KafkaOptions{
			QueueSize: cfg.Kafka.QueueSize,
			Workers:   cfg.Kafka.Workers,
			MaxRetry:  cfg.Kafka.MaxRetry,
			Logger:    rt.logger,
		})
		n.closers = append(n.closers, kp.Close, func() { _ = producer.Close() })
		pubs = append(pubs, kp)
	}

	n.publisher = notify.Multi(pubs...)
	return n, nil
}
