package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"resultsbakery/internal"
	"resultsbakery/internal/cache"
	"resultsbakery/internal/config"
	"resultsbakery/internal/datasource"
	"resultsbakery/internal/logging"
	"resultsbakery/internal/storage"
)

type commandContext struct {
	dbFlag         string
	datasourceFlag string
	cacheFlag      string

	configOnce sync.Once
	config     config.Config
	logger     *slog.Logger
	configErr  error

	reg *datasource.Registry
}

func (c *commandContext) ensureConfig() (config.Config, *slog.Logger, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if v := strings.TrimSpace(c.dbFlag); v != "" {
			cfg.DBPath = v
		}
		if v := strings.TrimSpace(c.datasourceFlag); v != "" {
			cfg.DatasourceDir = v
		}
		if v := strings.TrimSpace(c.cacheFlag); v != "" {
			cfg.CacheDir = v
		}
		logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
		if err != nil {
			c.configErr = fmt.Errorf("%w: %v", internal.ErrConfiguration, err)
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.logger, c.configErr
}

func (c *commandContext) registry() (*datasource.Registry, error) {
	if c.reg != nil {
		return c.reg, nil
	}
	cfg, _, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	reg, err := datasource.NewRegistry(cfg.DatasourceDir)
	if err != nil {
		return nil, err
	}
	c.reg = reg
	return reg, nil
}

func (c *commandContext) catalog(state string) (*datasource.Catalog, error) {
	reg, err := c.registry()
	if err != nil {
		return nil, err
	}
	return reg.Catalog(state)
}

func (c *commandContext) withDB(fn func(*storage.DB) error) error {
	cfg, _, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// source picks the object store when S3 is configured, else the local cache.
func (c *commandContext) source(state string) (cache.Source, error) {
	cfg, _, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.UseObjectStore() {
		src, err := cache.NewObjectSource(cfg, strings.ToLower(state))
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return cache.NewLocalSource(cfg.CacheDir), nil
}

func requireState(state string) error {
	if strings.TrimSpace(state) == "" {
		return fmt.Errorf("%w: --state is required", internal.ErrConfiguration)
	}
	return nil
}
