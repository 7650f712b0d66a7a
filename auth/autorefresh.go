package auth

import "context"

// StartAutoRefresh refreshes the session in the background until
// StopAutoRefresh, Close or the end of ctx. Any visibility handling set up by
// Initialize is detached: the caller now decides when refreshing runs.
func (c *Client) StartAutoRefresh(ctx context.Context) {
	c.removeVisibilityCallback()
	c.ticker.Start(ctx)
}

// StopAutoRefresh stops background refreshing and detaches visibility handling.
func (c *Client) StopAutoRefresh() {
	c.removeVisibilityCallback()
	c.ticker.Stop()
}

// AutoRefreshing reports whether the background refresh loop is running.
func (c *Client) AutoRefreshing() bool {
	return c.ticker.Running()
}

// handleVisibilityChange ties auto refresh to the environment's foreground
// state. Environments without one refresh continuously.
func (c *Client) handleVisibilityChange() {
	notifier, ok := c.env.(VisibilityNotifier)
	if !ok {
		if c.autoRefresh {
			c.StartAutoRefresh(c.ctx)
		}
		return
	}

	cancel := notifier.OnVisibilityChange(func(visible bool) {
		c.onVisibilityChanged(visible, false)
	})
	c.visibilityLock.Lock()
	c.cancelVisibility = cancel
	c.visibilityLock.Unlock()

	c.onVisibilityChanged(notifier.Visible(), true)
}

func (c *Client) onVisibilityChanged(visible, initial bool) {
	c.logger.Debug().Bool("visible", visible).Bool("initial", initial).Msg("#_onVisibilityChanged()")
	if !visible {
		if c.autoRefresh {
			c.ticker.Stop()
		}
		return
	}

	if !initial {
		if err := c.waitForInit(c.ctx); err != nil {
			return
		}
		c.recoverAndRefresh(c.ctx)
	}
	if c.autoRefresh {
		c.ticker.Start(c.ctx)
	}
}

func (c *Client) removeVisibilityCallback() {
	c.visibilityLock.Lock()
	cancel := c.cancelVisibility
	c.cancelVisibility = nil
	c.visibilityLock.Unlock()

	if cancel != nil {
		c.logger.Debug().Msg("#_removeVisibilityChangedCallback()")
		cancel()
	}
}
