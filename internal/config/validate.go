package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks configuration consistency. It collects every problem it
// finds so users can fix a config file in one pass.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if c.Paths.APIBind != "" {
		if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
			problems = append(problems, fmt.Sprintf("paths.api_bind %q is not host:port", c.Paths.APIBind))
		}
	}

	if c.Queue.MaxAttempts > 10 {
		problems = append(problems, "queue.max_attempts must be 10 or fewer")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
