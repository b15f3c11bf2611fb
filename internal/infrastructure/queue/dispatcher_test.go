package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unza/counseling-identity/internal/core/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.LoginEvent
	block  chan struct{}
}

func (s *recordingSink) Notify(_ context.Context, ev domain.LoginEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) bySubject() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string)
	for _, ev := range s.events {
		out[ev.Subject] = append(out[ev.Subject], ev.UserID)
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcher_DeliversInOrderPerSubject(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(3, sink, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	subjects := []string{"a@unza.zm", "b@unza.zm", "c@unza.zm", "d@unza.zm"}
	for i := 0; i < 20; i++ {
		for _, s := range subjects {
			require.NoError(t, d.Notify(context.Background(), domain.LoginEvent{Subject: s, UserID: fmt.Sprint(i)}))
		}
	}

	cancel()
	d.Wait()

	got := sink.bySubject()
	for _, s := range subjects {
		require.Len(t, got[s], 20, s)
		for i, id := range got[s] {
			assert.Equal(t, fmt.Sprint(i), id, "events for %s out of order", s)
		}
	}
}

func TestDispatcher_DropsWhenShardIsFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(1, sink, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	// One event is held by the blocked worker, channelBuffer more fill the
	// queue, and the rest are dropped without blocking the caller.
	total := channelBuffer + 50
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			_ = d.Notify(context.Background(), domain.LoginEvent{Subject: "same@unza.zm"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(sink.block)
	cancel()
	d.Wait()

	assert.Less(t, sink.count(), total)
	assert.GreaterOrEqual(t, sink.count(), channelBuffer)
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(0, &recordingSink{}, zerolog.Nop())
	assert.Len(t, d.workers, defaultWorkers)
	assert.Equal(t, d.shardIndex("jane@unza.zm"), d.shardIndex("jane@unza.zm"))
}
