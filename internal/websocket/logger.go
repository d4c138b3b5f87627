package websocket

import "go.uber.org/zap"

func newGatewayLog(instanceID string) *zap.Logger {
	return zap.L().With(zap.String("component", "websocket"), zap.String("instance_id", instanceID))
}

// log scopes an entry to this connection. State is read per entry, so lines
// written on the close path report CLOSING.
func (c *Connection) log() *zap.Logger {
	return c.logger.With(zap.Stringer("state", c.State()))
}
