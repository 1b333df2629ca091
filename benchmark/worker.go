package benchmark

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// readsPerWrite is the number of reads issued for every document written
const readsPerWrite = 3

// loadWorker repeatedly writes a fresh document and reads it back
// readsPerWrite times. One loadWorker runs per pool slot.
type loadWorker struct {
	store   Store
	ids     *atomic.Int64 // shared by all workers of a run
	keys    KeyScheme
	payload []byte
	acc     *MetricsAccumulator
	hists   *workerHistograms
}

// run loops until stop is cancelled, checking it once per iteration. opCtx
// is handed to the store and is only cancelled to force a stuck run down, so
// an iteration that already started finishes its operations normally.
func (w *loadWorker) run(stop, opCtx context.Context) {
	for stop.Err() == nil {
		key := w.keys.Key(w.ids.Add(1) - 1)

		w.write(opCtx, key)
		for i := 0; i < readsPerWrite; i++ {
			w.read(opCtx, key)
		}
	}
}

func (w *loadWorker) write(ctx context.Context, key string) {
	latency, err := timeOperation(func() error {
		return w.store.Put(ctx, key, w.payload)
	})
	if err != nil {
		w.acc.IncrementWriteErrors()
		log.Debug().Err(err).Str("id", key).Msg("Write operation failed")
		return
	}
	w.acc.RecordWrite(latency)
	w.hists.recordWrite(latency)
}

func (w *loadWorker) read(ctx context.Context, key string) {
	latency, err := timeOperation(func() error {
		_, err := w.store.Get(ctx, key)
		return err
	})
	if err != nil {
		w.acc.IncrementReadErrors()
		log.Debug().Err(err).Str("id", key).Msg("Read operation failed")
		return
	}
	w.acc.RecordRead(latency)
	w.hists.recordRead(latency)
}

// timeOperation runs op and measures it. A panicking store call is turned
// into an error so it is counted like any other failure instead of killing
// the process.
func timeOperation(op func() error) (latency time.Duration, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("store operation panicked: %v", r)
		}
		latency = time.Since(start)
	}()
	return 0, op()
}
