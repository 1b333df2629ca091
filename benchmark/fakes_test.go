package benchmark

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// noopStore accepts every operation immediately
type noopStore struct {
	clears atomic.Int32
}

func (s *noopStore) Put(context.Context, string, []byte) error { return nil }
func (s *noopStore) Get(context.Context, string) ([]byte, error) {
	return nil, nil
}
func (s *noopStore) ClearAll(context.Context) error { s.clears.Add(1); return nil }
func (s *noopStore) Close() error { return nil }

// failingStore fails every Put and Get
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Put(context.Context, string, []byte) error { return errStoreDown }
func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) ClearAll(context.Context) error { return nil }
func (failingStore) Close() error { return nil }

// panicStore panics inside every Put
type panicStore struct{ noopStore }

func (*panicStore) Put(context.Context, string, []byte) error { panic("boom") }

// blockingStore blocks every Put until release is closed, ignoring ctx
type blockingStore struct {
	noopStore
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{release: make(chan struct{})}
}

func (s *blockingStore) Put(context.Context, string, []byte) error {
	<-s.release
	return nil
}

// ctxBlockingStore blocks every Put until its context is cancelled
type ctxBlockingStore struct{ noopStore }

func (*ctxBlockingStore) Put(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingStore remembers every id written
type recordingStore struct {
	noopStore
	mu  sync.Mutex
	ids map[string]int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{ids: make(map[string]int)}
}

func (s *recordingStore) Put(_ context.Context, id string, _ []byte) error {
	s.mu.Lock()
	s.ids[id]++
	s.mu.Unlock()
	return nil
}

// stuckFirstStore blocks the first Put until release is closed and
// records the ids of every Put
type stuckFirstStore struct {
	recordingStore
	release chan struct{}
	calls   atomic.Int32
}

func newStuckFirstStore() *stuckFirstStore {
	return &stuckFirstStore{recordingStore: recordingStore{ids: make(map[string]int)}, release: make(chan struct{})}
}

func (s *stuckFirstStore) Put(ctx context.Context, id string, doc []byte) error {
	if err := s.recordingStore.Put(ctx, id, doc); err != nil {
		return err
	}
	if s.calls.Add(1) == 1 {
		<-s.release
	}
	return nil
}

// payloadStore records every payload it receives. Put blocks until want
// distinct payloads have arrived, then calls onAll once.
type payloadStore struct {
	noopStore
	want  int
	onAll func()

	mu    sync.Mutex
	seen  map[string]bool
	ready chan struct{}
}

func newPayloadStore(want int, onAll func()) *payloadStore {
	return &payloadStore{want: want, onAll: onAll, seen: make(map[string]bool), ready: make(chan struct{})}
}

func (s *payloadStore) Put(ctx context.Context, _ string, doc []byte) error {
	s.mu.Lock()
	s.seen[string(doc)] = true
	if len(s.seen) == s.want {
		select {
		case <-s.ready:
		default:
			close(s.ready)
			s.onAll()
		}
	}
	s.mu.Unlock()

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *payloadStore) payloads() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.seen))
	for k, v := range s.seen {
		out[k] = v
	}
	return out
}

// flakyClearStore fails ClearAll on the listed calls (1-based)
type flakyClearStore struct {
	noopStore
	failOn map[int32]bool
}

func (s *flakyClearStore) ClearAll(context.Context) error {
	n := s.clears.Add(1)
	if s.failOn[n] {
		return errors.Newf("clear %d failed", n)
	}
	return nil
}

// recordingObserver captures RunObserver notifications
type recordingObserver struct {
	mu       sync.Mutex
	started  []int
	finished []RunResult
}

func (o *recordingObserver) RunStarted(poolSize int, _ *MetricsAccumulator) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, poolSize)
}

func (o *recordingObserver) RunFinished(result RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, result)
}

// panickingObserver panics when a run starts
type panickingObserver struct{}

func (panickingObserver) RunStarted(int, *MetricsAccumulator) { panic("observer exploded") }
func (panickingObserver) RunFinished(RunResult) {}

// recordingReporter keeps every report it receives
type recordingReporter struct {
	reports []Report
}

func (r *recordingReporter) Report(rep Report) error {
	r.reports = append(r.reports, rep)
	return nil
}

// staticSource returns a fixed snapshot
type staticSource ExternalMetrics

func (s staticSource) FetchSnapshot(context.Context) ExternalMetrics {
	out := ExternalMetrics{}
	for k, v := range s {
		out[k] = v
	}
	return out
}
