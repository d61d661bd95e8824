package engine

import (
	"context"

	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
)

// watchRegistry forwards registry mutations to the peer once the session is
// ready. Mutations made earlier are announced when it becomes ready. Only
// categories advertised with listChanged are announced.
func (c *Conn) watchRegistry(ctx context.Context, sub *registry.Subscription) {
	select {
	case <-c.ready:
	case <-c.done:
		return
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-sub.C():
			caps := c.session.LocalCapabilities()
			for _, category := range sub.Pending() {
				cc := caps.Get(category)
				if cc == nil || !cc.ListChanged {
					continue
				}
				if err := c.Notify(ctx, category.ListChangedMethod(), nil); err != nil {
					c.logger.WithError(err).Warn("failed to send list changed",
						logging.String("category", string(category)))
					continue
				}
				c.logger.Debug("sent list changed", logging.String("category", string(category)))
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
