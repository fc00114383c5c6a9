package main

import (
	"strings"
	"sync"

	"millwork/internal/config"
	"millwork/internal/daemonctl"
	"millwork/internal/jobs"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
	})
	return c.config, c.configErr
}

// withStore runs fn against the job store. Direct store access works whether
// or not the daemon is running; SQLite WAL handles the shared readers.
func (c *commandContext) withStore(fn func(*jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// controlClient returns an HTTP client for the running daemon.
func (c *commandContext) controlClient() (*daemonctl.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return daemonctl.New(cfg.Paths.APIBind, cfg.Paths.APIToken), nil
}
