package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/account-service/internal/core/ports"
	"github.com/99minutos/account-service/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
	sendTimeout    = 30 * time.Second
)

// Dispatcher delivers notification jobs on a fixed set of workers. Jobs are
// sharded by account id so emails to one account go out in order.
type Dispatcher struct {
	workers  []chan ports.NotificationJob
	notifier ports.Notifier
	log      zerolog.Logger
}

var _ ports.NotificationQueue = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, notifier ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.NotificationJob, numWorkers),
		notifier: notifier,
		log:      log.With().Str("component", "notification_dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.NotificationJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands job to the worker owning its account. It never blocks: when
// that worker's buffer is full the job is dropped and false is returned.
func (d *Dispatcher) Enqueue(job ports.NotificationJob) bool {
	idx := d.shardIndex(job.Account.ID)
	select {
	case d.workers[idx] <- job:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues(string(job.Category), "dropped").Inc()
		d.log.Warn().
			Str("account_id", job.Account.ID).
			Str("category", string(job.Category)).
			Int("worker_id", idx).
			Msg("notification queue full, job dropped")
		return false
	}
}

// shardIndex maps an account id deterministically to a worker index.
func (d *Dispatcher) shardIndex(accountID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.NotificationJob) {
	depth := metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			depth.Set(float64(len(ch)))
			d.deliver(ctx, id, job)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, workerID int, job ports.NotificationJob) {
	category := string(job.Category)
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	start := time.Now()
	err := d.send(sendCtx, job)
	metrics.NotificationSendDuration.WithLabelValues(category).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(category, "failed").Inc()
		d.log.Warn().Err(err).
			Str("account_id", job.Account.ID).
			Str("category", category).
			Int("worker_id", workerID).
			Msg("notification delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(category, "sent").Inc()
}

func (d *Dispatcher) send(ctx context.Context, job ports.NotificationJob) error {
	account := job.Account
	switch job.Category {
	case ports.CategoryEmailVerification:
		return d.notifier.SendVerificationEmail(ctx, &account)
	case ports.CategoryPasswordReset:
		return d.notifier.SendPasswordResetNotice(ctx, &account)
	case ports.CategoryAccountLocked:
		return d.notifier.SendAccountLockedNotice(ctx, &account)
	default:
		return fmt.Errorf("unknown notification category %q", job.Category)
	}
}
