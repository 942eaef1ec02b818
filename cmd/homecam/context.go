package main

import (
	"strings"
	"sync"

	"github.com/kdimtricp/homecam/internal/config"
	"github.com/kdimtricp/homecam/internal/recognition"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
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
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// boxClient builds a recognition client for commands that talk to the box
// directly, without a running server.
func (c *commandContext) boxClient() (*recognition.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return recognition.NewClient(recognition.Config{
		BaseURL:         cfg.Box.URL,
		CurrentTimeout:  cfg.PollTimeout(),
		LabelsTimeout:   cfg.LabelsTimeout(),
		RegisterTimeout: cfg.RegisterTimeout(),
	}), nil
}
