package discord

import (
	"context"
	"log/slog"
)

// Connect opens the gateway websocket. A context deadline aborts the attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.done = make(chan struct{})
	c.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- c.session.Open() }()

	select {
	case err := <-errCh:
		if err != nil {
			return ClassifyConnectError(err)
		}
		c.connected.Store(true)
		c.logger.Info("gateway connected", slog.String("guild_id", c.guildID))
		return nil
	case <-ctx.Done():
		go func() {
			// Open may still succeed after we gave up on it.
			if err := <-errCh; err == nil {
				_ = c.session.Close()
			}
		}()
		return ctx.Err()
	}
}

// Wait blocks until the connected session ends. A dropped connection is a
// clean end; the supervisor decides when to reconnect.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the gateway session.
func (c *Client) Close() error {
	err := c.session.Close()
	c.markDisconnected()
	return err
}

// Connected reports whether the gateway session is up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) markDisconnected() {
	c.connected.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}
