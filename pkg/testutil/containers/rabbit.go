//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcrabbit "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// RabbitContainer wraps a testcontainers RabbitMQ instance.
type RabbitContainer struct {
	Container testcontainers.Container
	URL       string
}

// NewRabbitContainer starts a new RabbitMQ broker and returns its AMQP URL.
func NewRabbitContainer(t *testing.T) *RabbitContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcrabbit.Run(ctx, "rabbitmq:3.12-management-alpine")
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}

	url, err := container.AmqpURL(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get rabbitmq URL: %v", err)
	}

	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	return &RabbitContainer{Container: container, URL: url}
}
