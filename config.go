package notifyexec

// defaultExecutorThreadPoolSize is used when neither ExecutorThreadPoolSize
// nor the legacy RPCThreadPoolSize alias is set.
const defaultExecutorThreadPoolSize = 64

// Config holds the PooledExecutor's recognized configuration.
type Config struct {
	// ExecutorThreadPoolSize bounds the number of concurrently running
	// worker tasks. Defaults to 64 if <= 0 and RPCThreadPoolSize is also
	// unset.
	ExecutorThreadPoolSize int

	// RPCThreadPoolSize is a deprecated alias for ExecutorThreadPoolSize,
	// honored only when ExecutorThreadPoolSize is unset.
	RPCThreadPoolSize int
}

// poolSize resolves the effective worker pool size.
func (c Config) poolSize() int {
	if c.ExecutorThreadPoolSize > 0 {
		return c.ExecutorThreadPoolSize
	}
	if c.RPCThreadPoolSize > 0 {
		return c.RPCThreadPoolSize
	}
	return defaultExecutorThreadPoolSize
}

// Option configures a Dispatcher or BatchDispatcher.
type Option interface {
	apply(*dispatcherConfig)
}

type dispatcherConfig struct {
	logger Logger
}

type optionFunc func(*dispatcherConfig)

func (f optionFunc) apply(c *dispatcherConfig) { f(c) }

// WithLogger overrides the Logger used for diagnostic output (unknown
// priorities, handler panics, ack/requeue failures). Defaults to a
// zerolog-backed Logger writing to stderr.
func WithLogger(logger Logger) Option {
	return optionFunc(func(c *dispatcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

func resolveDispatcherConfig(opts []Option) *dispatcherConfig {
	cfg := &dispatcherConfig{logger: defaultLogger()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
