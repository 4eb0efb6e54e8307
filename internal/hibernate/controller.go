// Package hibernate spills cold tick accumulators to compressed disk records
// and boots them back on demand, keeping resident memory under a budget
// without changing fold or merge results.
package hibernate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pierrec/lz4/v4"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/observability"
	"github.com/tickfold/tickfold/internal/persist"
	"github.com/tickfold/tickfold/internal/tickstore"
)

// DefaultThreshold is the default resident memory budget (512 MB).
const DefaultThreshold = 512 * 1024 * 1024

// ErrHibernationIO marks a failed spill or boot. These are hard errors:
// silently dropping a spilled tick would corrupt the aggregate.
var ErrHibernationIO = errors.New("hibernation I/O failed")

// Controller evicts the coldest ticks when the store's resident size exceeds
// Threshold, and boots them back transparently through the store's Booter
// hook.
type Controller struct {
	// Threshold is the resident size budget in bytes.
	Threshold int64

	store   persist.BlobStore
	factory analyze.Factory
	records map[int]bool
	metrics *observability.EngineMetrics
	logger  *slog.Logger
}

// NewController creates a hibernation controller over the given blob store.
// A non-positive threshold falls back to DefaultThreshold.
func NewController(
	threshold int64,
	store persist.BlobStore,
	factory analyze.Factory,
	metrics *observability.EngineMetrics,
	logger *slog.Logger,
) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Controller{
		Threshold: threshold,
		store:     store,
		factory:   factory,
		records:   make(map[int]bool),
		metrics:   metrics,
		logger:    observability.OrDiscard(logger),
	}
}

// MaybeHibernate evicts cold ticks until the store's resident size fits the
// budget. The most recently folded tick is never evicted, so the loop stops
// once only hot ticks remain.
func (c *Controller) MaybeHibernate(ctx context.Context, store *tickstore.Store) error {
	for store.ResidentSize() > c.Threshold {
		if err := ctx.Err(); err != nil {
			return err
		}

		tick, ok := store.Coldest()
		if !ok {
			return nil
		}

		err := c.spill(store, tick)
		if err != nil {
			return err
		}
	}

	return nil
}

// Boot restores a hibernated tick's accumulator and drops its disk record.
// It satisfies tickstore.Booter.
func (c *Controller) Boot(tick int) (analyze.Accumulator, error) {
	compressed, err := c.store.Get(recordKey(tick))
	if err != nil {
		return nil, fmt.Errorf("%w: read tick %d: %w", ErrHibernationIO, tick, err)
	}

	data, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress tick %d: %w", ErrHibernationIO, tick, err)
	}

	acc := c.factory()

	unmarshalErr := acc.UnmarshalBinary(data)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: decode tick %d: %w", ErrHibernationIO, tick, unmarshalErr)
	}

	deleteErr := c.store.Delete(recordKey(tick))
	if deleteErr != nil {
		return nil, fmt.Errorf("%w: drop record for tick %d: %w", ErrHibernationIO, tick, deleteErr)
	}

	delete(c.records, tick)
	c.metrics.Booted()
	c.logger.Debug("tick booted", slog.Int("tick", tick))

	return acc, nil
}

// Hibernated reports whether this controller holds a record for the tick.
func (c *Controller) Hibernated(tick int) bool {
	return c.records[tick]
}

func (c *Controller) spill(store *tickstore.Store, tick int) error {
	acc, ok := store.Evict(tick)
	if !ok {
		return fmt.Errorf("%w: tick %d is not resident", ErrHibernationIO, tick)
	}

	data, marshalErr := acc.MarshalBinary()
	if marshalErr != nil {
		return fmt.Errorf("%w: encode tick %d: %w", ErrHibernationIO, tick, marshalErr)
	}

	compressed, compressErr := compress(data)
	if compressErr != nil {
		return fmt.Errorf("%w: compress tick %d: %w", ErrHibernationIO, tick, compressErr)
	}

	putErr := c.store.Put(recordKey(tick), compressed)
	if putErr != nil {
		return fmt.Errorf("%w: write tick %d: %w", ErrHibernationIO, tick, putErr)
	}

	c.records[tick] = true
	c.metrics.Spilled()
	c.logger.Debug("tick hibernated",
		slog.Int("tick", tick),
		slog.Int("raw_bytes", len(data)),
		slog.Int("compressed_bytes", len(compressed)))

	return nil
}

func recordKey(tick int) string {
	return fmt.Sprintf("tick_%06d.lz4", tick)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)

	_, err := w.Write(data)

	closeErr := w.Close()

	if err != nil {
		return nil, err
	}

	if closeErr != nil {
		return nil, closeErr
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	return io.ReadAll(r)
}
