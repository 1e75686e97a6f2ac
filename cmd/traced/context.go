package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"traced/internal/config"
	"traced/internal/execx"
	"traced/internal/history"
	"traced/internal/logging"
	"traced/internal/perfetto"
	"traced/internal/trace"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	// engineOverride lets tests substitute a fake engine.
	engineOverride trace.Engine
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
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		outputs := []string{"stderr"}
		if cfg.Logging.LogDir != "" {
			outputs = append(outputs, filepath.Join(cfg.Logging.LogDir, "traced.log"))
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: outputs,
		})
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) engine() (trace.Engine, error) {
	if c.engineOverride != nil {
		return c.engineOverride, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return perfetto.NewEngine(perfetto.Options{
		Binary:         cfg.Perfetto.Binary,
		SessionTag:     cfg.Perfetto.SessionTag,
		OutputDir:      cfg.Paths.OutputDir,
		StartupTimeout: secondsToDuration(cfg.Perfetto.StartupTimeoutSeconds),
		StopTimeout:    secondsToDuration(cfg.Perfetto.StopTimeoutSeconds),
		ListTimeout:    secondsToDuration(cfg.Perfetto.ListTimeoutSeconds),
	}, execx.NewShell(logger), logger)
}

func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.Paths.HistoryDB)
}
