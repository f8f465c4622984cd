// Package rabbit implements the RPC-over-broker surface: a durable direct
// exchange routes verification requests into a queue, each request names
// its own reply queue via reply_to, and replies echo the caller's
// correlation_id byte for byte.
package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"reniec/internal/persona"
	"reniec/internal/persona/service"
	"reniec/internal/persona/store"
	"reniec/internal/platform/config"
	"reniec/internal/platform/metrics"
	"reniec/internal/platform/rabbit"
)

// consumerTag identifies this server's consumer on the broker.
const consumerTag = "reniec-consumer"

// Verifier answers identity lookups. It is the only thing the responder
// knows about the domain.
type Verifier interface {
	Verify(ctx context.Context, dni string) (*persona.Person, error)
}

// replyPublisher is the part of *amqp.Channel the responder publishes
// with; a fake stands in for it in tests.
type replyPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Responder consumes verification requests and publishes correlated
// replies. One instance owns one channel; deliveries fan out to a fixed
// worker pool whose size doubles as the channel prefetch, so the broker
// never buffers more work on this node than the pool will take.
type Responder struct {
	client   *rabbit.Client
	cfg      config.RabbitConfig
	verifier Verifier
	format   ReplyFormatter
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	pub replyPublisher
}

// New wires a responder. Run does all broker I/O; New only captures
// dependencies.
func New(client *rabbit.Client, rcfg config.RabbitConfig, vcfg config.VerifyConfig, verifier Verifier, logger *slog.Logger, m *metrics.Metrics) *Responder {
	return &Responder{
		client:   client,
		cfg:      rcfg,
		verifier: verifier,
		format:   FormatterFor(vcfg.ReplyFormat),
		timeout:  vcfg.LookupTimeout,
		logger:   logger,
		metrics:  m,
	}
}

// Run declares the topology, starts consuming, and blocks until ctx is
// cancelled or the channel dies. Cancellation is graceful: the consumer is
// stopped first, then in-flight deliveries finish, reply, and ack.
func (r *Responder) Run(ctx context.Context) error {
	ch, err := r.client.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareTopology(ch, r.cfg); err != nil {
		return err
	}
	if err := ch.Qos(r.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(r.cfg.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	r.pub = ch
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	r.logger.Info("consuming verification requests",
		"exchange", r.cfg.Exchange,
		"queue", r.cfg.Queue,
		"routing_key", r.cfg.RoutingKey,
		"workers", r.cfg.Prefetch,
	)

	// Workers keep handling drained deliveries after ctx is cancelled, so
	// their lookups run on an uncancellable context.
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Prefetch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				r.handleDelivery(workCtx, d)
			}
		}()
	}

	select {
	case <-ctx.Done():
		if err := ch.Cancel(consumerTag, false); err != nil {
			r.logger.Warn("cancel consumer", "error", err)
		}
		wg.Wait()
		r.logger.Info("responder drained")
		return nil
	case amqpErr := <-closed:
		wg.Wait()
		if amqpErr != nil {
			return fmt.Errorf("channel closed: %w", amqpErr)
		}
		return errors.New("channel closed")
	}
}

func declareTopology(ch *amqp.Channel, cfg config.RabbitConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", cfg.Queue, cfg.Exchange, err)
	}
	return nil
}

// handleDelivery is the whole per-message protocol, in order: capture
// metadata, decode, look up, format, publish to reply_to through the
// default exchange, ack. The ack always happens, after the publish
// attempt; a failed reply is the caller's timeout to deal with, and
// redelivering the request to ourselves would not help them.
func (r *Responder) handleDelivery(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	r.metrics.DeliveryStarted()
	defer r.metrics.DeliveryFinished()

	corrID := d.CorrelationId
	replyTo := d.ReplyTo
	dni := dniFromBody(d.Body)

	r.logger.Debug("request received",
		"correlation_id", corrID, "reply_to", replyTo, "bytes", len(d.Body))

	outcome, reply := r.process(ctx, dni)
	r.metrics.IncrementRequest(outcome)
	r.metrics.ObserveLookupLatency(time.Since(start))

	switch {
	case replyTo == "":
		// Caller error: nowhere to answer. Ack below so the request is not
		// redelivered into the same dead end.
		r.logger.Warn("missing reply_to, dropping reply",
			"correlation_id", corrID, "outcome", outcome)
		r.metrics.IncrementDroppedReply()
	default:
		if err := r.publishReply(ctx, replyTo, corrID, reply); err != nil {
			r.logger.Error("publish reply",
				"correlation_id", corrID, "reply_to", replyTo, "error", err)
			r.metrics.IncrementPublishFailure()
		} else {
			r.logger.Debug("reply sent",
				"correlation_id", corrID, "reply_to", replyTo,
				"outcome", outcome, "bytes", len(reply))
		}
	}

	if err := d.Ack(false); err != nil {
		r.logger.Error("ack delivery", "correlation_id", corrID, "error", err)
	}
}

// process turns one identifier into an outcome label and a reply body.
// Invalid identifiers and misses share the caller-visible miss shape but
// stay distinct outcomes for observability.
func (r *Responder) process(ctx context.Context, dni string) (string, []byte) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.verifier.Verify(ctx, dni)
	switch {
	case err == nil:
		return "found", r.format.Found(p)
	case errors.Is(err, service.ErrInvalidDNI):
		return "invalid", r.format.NotFound(dni)
	case errors.Is(err, store.ErrNotFound):
		return "not_found", r.format.NotFound(dni)
	default:
		return "error", r.format.Failure(err.Error())
	}
}

func (r *Responder) publishReply(ctx context.Context, replyTo, corrID string, body []byte) error {
	// The default exchange routes by queue name, which is exactly what
	// reply_to carries. corrID goes back verbatim, empty included.
	return r.pub.PublishWithContext(ctx, "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corrID,
		Body:          body,
	})
}
