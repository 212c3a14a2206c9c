package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kvstore-collector/internal/collector"
	"kvstore-collector/internal/collector/config"
	"kvstore-collector/internal/shared/logger"
)

// Container owns the collector module and its configuration for the
// lifetime of one command.
type Container struct {
	mu sync.RWMutex
	// Module instances
	CollectorModule *collector.CollectorModule
	// Configuration
	Config *config.Config
	Inputs []config.InputDefinition
	// Logger
	Logger logger.Logger
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{}
}

// InitializeLogger builds the logger selected by cfg.
func (c *Container) InitializeLogger(cfg *config.Config) logger.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Config = cfg
	c.Logger = logger.New(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format)
	return c.Logger
}

// InitializeCollector builds the collector module from cfg.
func (c *Container) InitializeCollector(ctx context.Context, cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Config = cfg
	if c.Logger == nil {
		c.Logger = logger.New(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format)
	}
	module, err := collector.NewCollectorModule(ctx, cfg, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create collector module: %w", err)
	}
	c.CollectorModule = module
	return nil
}

// LoadInputs reads the inputs file named by the configuration.
func (c *Container) LoadInputs() ([]config.InputDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Config == nil {
		return nil, fmt.Errorf("configuration must be loaded before inputs")
	}
	inputs, err := config.LoadInputs(c.Config.InputsFile)
	if err != nil {
		return nil, err
	}
	c.Inputs = inputs
	return inputs, nil
}

// GetCollectorModule returns the collector module instance
func (c *Container) GetCollectorModule() *collector.CollectorModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CollectorModule
}

// HealthCheck performs health check on all initialized modules
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.CollectorModule == nil {
		return fmt.Errorf("collector module is not initialized")
	}
	return c.CollectorModule.HealthCheck(ctx)
}

// Cleanup releases the module's connections.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CollectorModule == nil {
		return nil
	}
	err := c.CollectorModule.Close(ctx)
	c.CollectorModule = nil
	if err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	return nil
}

// Close shuts the container down with a timeout.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.Cleanup(ctx)
}
