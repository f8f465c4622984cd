//go:build integration

package rabbit_test

import (
	"context"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reniec/internal/persona/service"
	"reniec/internal/persona/store"
	"reniec/internal/platform/config"
	"reniec/internal/platform/logger"
	platformrabbit "reniec/internal/platform/rabbit"
	"reniec/internal/transport/rabbit"
	"reniec/pkg/testutil/containers"
)

func rabbitConfigFromURL(t *testing.T, raw string) config.RabbitConfig {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.Default().Rabbit
	cfg.Host = u.Hostname()
	cfg.Port = port
	if u.User != nil {
		cfg.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	return cfg
}

func openSeededStore(t *testing.T) store.Store {
	t.Helper()
	cfg := config.Default().Store
	cfg.SQLitePath = filepath.Join(t.TempDir(), "reniec.db")
	s, err := store.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.InitializeSchema(context.Background()))
	return s
}

// TestResponderRoundTrip drives the full RPC path against a real broker:
// request in through the direct exchange, reply out through the default
// exchange to the caller's exclusive queue.
func TestResponderRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	rc := containers.NewRabbitContainer(t)
	cfg := rabbitConfigFromURL(t, rc.URL)

	verifier := service.NewVerifier(openSeededStore(t))

	client, err := platformrabbit.Dial(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	responder := rabbit.New(client, cfg, config.VerifyConfig{
		ReplyFormat:   config.ReplyFormatPerson,
		LookupTimeout: 5 * time.Second,
	}, verifier, logger.Discard(), nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- responder.Run(runCtx) }()

	// Caller side on its own connection, the way the bank process calls in.
	caller, err := platformrabbit.DialNamed(cfg, "test-caller")
	require.NoError(t, err)
	t.Cleanup(func() { caller.Close() })
	ch, err := caller.Channel()
	require.NoError(t, err)

	// Callers declare the request topology too, so publishing does not race
	// responder startup. Declarations are idempotent.
	require.NoError(t, ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil))
	_, err = ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil))

	callback, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	replies, err := ch.Consume(callback.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	call := func(body string) amqp.Delivery {
		t.Helper()
		corrID := uuid.NewString()
		err := ch.PublishWithContext(ctx, cfg.Exchange, cfg.RoutingKey, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: corrID,
			ReplyTo:       callback.Name,
			Body:          []byte(body),
		})
		require.NoError(t, err)
		for {
			select {
			case d := <-replies:
				if d.CorrelationId == corrID {
					return d
				}
			case <-time.After(30 * time.Second):
				t.Fatalf("no correlated reply for %s", body)
			}
		}
	}

	type reply struct {
		OK     bool `json:"ok"`
		Person *struct {
			DNI       string `json:"dni"`
			Names     string `json:"nombres"`
			Paternal  string `json:"apellidoPat"`
			Maternal  string `json:"apellidoMat"`
			BirthDate string `json:"fecha_naci"`
			Sex       string `json:"sexo"`
		} `json:"person"`
		Error any `json:"error"`
	}

	t.Run("hit", func(t *testing.T) {
		d := call(`{"dni":"45678912"}`)
		var got reply
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.True(t, got.OK)
		require.NotNil(t, got.Person)
		assert.Equal(t, "45678912", got.Person.DNI)
		assert.Equal(t, "MILAGROS ESTHER", got.Person.Names)
		assert.Equal(t, "CASTRO", got.Person.Paternal)
		assert.Equal(t, "VILLANUEVA", got.Person.Maternal)
		assert.Equal(t, "1997-08-19", got.Person.BirthDate)
		assert.Equal(t, "F", got.Person.Sex)
		assert.Nil(t, got.Error)
	})

	t.Run("miss", func(t *testing.T) {
		d := call(`{"dni":"99999999"}`)
		var got reply
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.False(t, got.OK)
		assert.Nil(t, got.Person)
		assert.Equal(t, "NOT_FOUND", got.Error)
	})

	t.Run("sequential load", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			d := call(`{"dni":"12345678"}`)
			var got reply
			require.NoError(t, json.Unmarshal(d.Body, &got))
			require.True(t, got.OK)
			require.Equal(t, "TORRES", got.Person.Paternal)
		}
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err, "a cancelled responder drains and exits clean")
	case <-time.After(15 * time.Second):
		t.Fatal("responder did not shut down")
	}
}
