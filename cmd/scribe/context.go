package main

import (
	"fmt"
	"strings"

	"scribe/internal/config"
)

// commandContext carries lazily loaded configuration and the daemon client
// shared by all subcommands.
type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	cfg    *config.Config
	client *daemonClient
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureClient() (*daemonClient, error) {
	if c.client != nil {
		return c.client, nil
	}

	server := strings.TrimSpace(*c.serverFlag)
	token := strings.TrimSpace(*c.tokenFlag)
	if server == "" || token == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		if server == "" {
			server = cfg.Paths.APIBind
		}
		if token == "" {
			token = cfg.Paths.APIToken
		}
	}
	if server == "" {
		return nil, fmt.Errorf("daemon address required (set paths.api_bind or --server)")
	}

	c.client = newDaemonClient(server, token)
	return c.client, nil
}
