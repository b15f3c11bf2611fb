package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/api/metrics"
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256

	deliveryTimeout = 5 * time.Second
)

// Dispatcher hands login events to a downstream notifier off the request
// path. Events are sharded by subject so one user's events stay ordered.
type Dispatcher struct {
	workers []chan domain.LoginEvent
	sink    ports.LoginNotifier
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, sink ports.LoginNotifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.LoginEvent, numWorkers),
		sink:    sink,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.LoginEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers drain their queue and stop
// when ctx is cancelled; Wait blocks until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Notify enqueues ev without blocking. A saturated shard drops the event.
func (d *Dispatcher) Notify(_ context.Context, ev domain.LoginEvent) error {
	idx := d.shardIndex(ev.Subject)
	select {
	case d.workers[idx] <- ev:
		metrics.LoginEventsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.LoginEventsDroppedTotal.Inc()
		d.log.Warn().Str("subject", ev.Subject).Int("worker_id", idx).Msg("login event dropped, queue full")
	}
	return nil
}

// shardIndex maps a subject deterministically to a worker index.
func (d *Dispatcher) shardIndex(subject string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.LoginEvent) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			d.drain(id, ch)
			return
		case ev := <-ch:
			metrics.LoginEventsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.deliver(id, ev)
		}
	}
}

func (d *Dispatcher) drain(id int, ch <-chan domain.LoginEvent) {
	for {
		select {
		case ev := <-ch:
			d.deliver(id, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(id int, ev domain.LoginEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := d.sink.Notify(ctx, ev); err != nil {
		d.log.Error().Err(err).
			Str("subject", ev.Subject).
			Int("worker_id", id).
			Msg("login event delivery failed")
	}
}
