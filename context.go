package main

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ekjot25/Audio-Analysis/config"
	"github.com/ekjot25/Audio-Analysis/logging"
	"github.com/ekjot25/Audio-Analysis/orchestrator"
)

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string

	configOnce sync.Once
	config     *config.Root
	logger     *logrus.Logger
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
	}
}

// ensureConfig loads the configuration once and builds the logger from it.
// The log flags win over the file.
func (c *commandContext) ensureConfig() (*config.Root, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if v := flagValue(c.logLevelFlag); v != "" {
			cfg.Pipeline.LogLvl = v
		}
		if v := flagValue(c.logFormatFlag); v != "" {
			cfg.Pipeline.LogFormat = v
		}
		log, err := logging.New(cfg.Pipeline.LogLvl, cfg.Pipeline.LogFormat)
		if err != nil {
			c.configErr = err
			return
		}
		if cfg.File != "" {
			log.WithField("file", cfg.File).Debug("configuration loaded")
		}
		c.config = cfg
		c.logger = log
	})
	return c.config, c.configErr
}

// pipeline returns a pipeline whose logger writes to the command's stderr.
func (c *commandContext) pipeline(cmd *cobra.Command) (*orchestrator.Pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.logger.SetOutput(cmd.ErrOrStderr())
	return orchestrator.NewPipeline(cfg, c.logger), nil
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
