package ssh

import (
	"context"
	"fmt"

	"github.com/berthd/berthd/pkg/runtime"
)

// Connector dials a server over SSH and hands back a server runtime.
// It implements runtime.Connector.
type Connector struct {
	config *Config
}

// NewConnector creates a connector for the given server configuration.
func NewConnector(config *Config) (*Connector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Connector{config: config}, nil
}

// Connect dials asynchronously and settles the callback exactly once.
func (c *Connector) Connect(callback runtime.ConnectionCallback) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectionTimeout)
		defer cancel()

		cl, err := dial(ctx, c.config)
		if err != nil {
			callback.ConnectionFailed(err.Error())
			return
		}
		callback.Connected(&serverRuntime{client: cl, config: c.config})
	}()
}
