package pubsub

import (
	"sync"

	"go.uber.org/zap"
)

// Broker is a simple in-memory pub/sub system keyed by job id. Handlers
// publish their log lines as they run so operators can stream a job's
// progress live instead of waiting for the row's Data column to be committed.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[uint64][]chan string // job id -> list of subscriber channels
	cache       map[uint64][]string      // job id -> lines published so far
}

var (
	once   sync.Once
	broker *Broker
)

// GetBroker returns the singleton instance of the Broker.
func GetBroker() *Broker {
	once.Do(func() {
		broker = &Broker{
			subscribers: make(map[uint64][]chan string),
			cache:       make(map[uint64][]string),
		}
	})
	return broker
}

// Subscribe subscribes to a job's log stream. The new subscriber first
// receives all lines published so far, then live lines.
func (b *Broker) Subscribe(jobID uint64) (<-chan string, func()) {
	b.mu.Lock()

	ch := make(chan string, 128)
	history := b.cache[jobID]

	go func() {
		for _, line := range history {
			ch <- line
		}
	}()

	b.subscribers[jobID] = append(b.subscribers[jobID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subscribers[jobID]
		for i, sub := range subscribers {
			if sub == ch {
				b.subscribers[jobID] = append(subscribers[:i], subscribers[i+1:]...)
				close(ch)
				break
			}
		}
		zap.S().Debugf("unsubscribed from job %d log stream", jobID)
	}

	return ch, unsubscribe
}

// Publish sends a log line to all subscribers of a job and caches it.
func (b *Broker) Publish(jobID uint64, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache[jobID] = append(b.cache[jobID], line)

	for _, ch := range b.subscribers[jobID] {
		select {
		case ch <- line:
		default:
			// A slow subscriber must not block the publishing handler.
		}
	}
}

// CloseJob closes all subscriber channels and clears the cache for a job.
// Called when the job reaches a terminal status; the full log lives in the
// job row's Data column from then on.
func (b *Broker) CloseJob(jobID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[jobID]; ok {
		for _, ch := range subscribers {
			close(ch)
		}
		delete(b.subscribers, jobID)
	}
	delete(b.cache, jobID)
}
