// Package rabbit wraps the shared AMQP connection with health checking.
package rabbit

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"reniec/internal/platform/config"
)

// connectionName shows up in the broker's management UI.
const connectionName = "reniec-server"

// Client wraps the process-wide AMQP connection. Channels are cheap; the
// connection is the expensive resource and there is exactly one.
type Client struct {
	conn *amqp.Connection
}

// Dial connects to the broker named by cfg, with a 30s heartbeat so dead
// peers are noticed without waiting on TCP timeouts.
func Dial(cfg config.RabbitConfig) (*Client, error) {
	return DialNamed(cfg, connectionName)
}

// DialNamed is Dial with an explicit connection name, for tools that should
// not show up in the management UI as the server itself.
func DialNamed(cfg config.RabbitConfig, name string) (*Client, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(name)

	conn, err := amqp.DialConfig(cfg.URL(), amqp.Config{
		Heartbeat:  30 * time.Second,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Channel opens a fresh channel on the shared connection.
func (c *Client) Channel() (*amqp.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// Health reports whether the connection is still open.
func (c *Client) Health() error {
	if c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close shuts down the connection and every channel on it.
func (c *Client) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
