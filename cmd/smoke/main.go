// Smoke client for the verification service. It publishes lookup requests
// the same way the bank caller does, waits for the correlated replies on an
// exclusive callback queue, and prints the bodies with a latency summary.
//
// Typical use against a local compose stack:
//
//	go run ./cmd/smoke -dni 45678912,99999999 -n 5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"reniec/internal/platform/config"
	rabbitmq "reniec/internal/platform/rabbit"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	list := flag.String("dni", "45678912,99999999", "comma separated identifiers to look up")
	cycles := flag.Int("n", 1, "how many times to run the list")
	timeout := flag.Duration("timeout", 10*time.Second, "per-call reply timeout")
	flag.Parse()

	if err := run(*configPath, *list, *cycles, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "smoke: %v\n", err)
		os.Exit(1)
	}
}

func run(path, list string, cycles int, timeout time.Duration) error {
	if path == "" {
		path = os.Getenv("RENIEC_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var dnis []string
	for _, d := range strings.Split(list, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dnis = append(dnis, d)
		}
	}
	if len(dnis) == 0 {
		return fmt.Errorf("no identifiers to look up")
	}

	client, err := rabbitmq.DialNamed(cfg.Rabbit, "reniec-smoke")
	if err != nil {
		return err
	}
	defer client.Close()

	ch, err := client.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	// Declare the request topology too, so a run against a fresh broker
	// parks requests until the server attaches instead of dropping them.
	rc := cfg.Rabbit
	if err := ch.ExchangeDeclare(rc.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(rc.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(rc.Queue, rc.RoutingKey, rc.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	callback, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare callback queue: %w", err)
	}
	replies, err := ch.Consume(callback.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume callback queue: %w", err)
	}

	ctx := context.Background()
	var latencies []time.Duration
	total, hits, failed := 0, 0, 0

	for c := 0; c < cycles; c++ {
		for _, dni := range dnis {
			total++
			elapsed, body, err := call(ctx, ch, rc, callback.Name, replies, dni, timeout)
			if err != nil {
				failed++
				fmt.Printf("%-10s  ERROR  %v\n", dni, err)
				continue
			}
			latencies = append(latencies, elapsed)
			if replyOK(body) {
				hits++
			}
			fmt.Printf("%-10s  %7.1fms  %s\n", dni, ms(elapsed), body)
		}
	}

	misses := total - failed - hits
	fmt.Printf("\n%d calls: %d hits, %d misses, %d failed", total, hits, misses, failed)
	if len(latencies) > 0 {
		fmt.Printf("  (p50=%.1fms p95=%.1fms)", ms(percentile(latencies, 50)), ms(percentile(latencies, 95)))
	}
	fmt.Println()

	if failed > 0 {
		return fmt.Errorf("%d of %d calls got no reply", failed, total)
	}
	return nil
}

func call(ctx context.Context, ch *amqp.Channel, rc config.RabbitConfig, replyQueue string, replies <-chan amqp.Delivery, dni string, timeout time.Duration) (time.Duration, []byte, error) {
	corrID := uuid.NewString()
	body, err := json.Marshal(map[string]string{"dni": dni})
	if err != nil {
		return 0, nil, err
	}

	start := time.Now()
	err = ch.PublishWithContext(ctx, rc.Exchange, rc.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corrID,
		ReplyTo:       replyQueue,
		Body:          body,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("publish: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case d, open := <-replies:
			if !open {
				return 0, nil, fmt.Errorf("reply channel closed")
			}
			if d.CorrelationId != corrID {
				// Stale reply from an earlier call that timed out.
				continue
			}
			return time.Since(start), d.Body, nil
		case <-deadline.C:
			return 0, nil, fmt.Errorf("no reply within %s", timeout)
		}
	}
}

func replyOK(body []byte) bool {
	var r struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return false
	}
	return r.OK
}

func percentile(durations []time.Duration, p int) time.Duration {
	xs := append([]time.Duration(nil), durations...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Round(float64(p) / 100.0 * float64(len(xs)-1)))
	return xs[k]
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
