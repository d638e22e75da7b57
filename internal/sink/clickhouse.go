package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	ch "github.com/SteelMorgan/cwtail/internal/clickhouse"
	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/normalizer"
	"github.com/rs/zerolog/log"
)

// ClickHouse DateTime64 valid range: 1925-01-01 to 2283-11-11
var (
	minClickHouseDateTime = time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)
	maxClickHouseDateTime = time.Date(2283, 11, 11, 23, 59, 59, 999999999, time.UTC)
)

// ensureValidDateTime ensures the time value is within ClickHouse DateTime64 range
func ensureValidDateTime(t time.Time) time.Time {
	if t.IsZero() || t.Before(minClickHouseDateTime) || t.After(maxClickHouseDateTime) {
		return minClickHouseDateTime
	}
	return t
}

// EventRow is one archived event
type EventRow struct {
	RunID          string
	LogGroup       string
	LogStream      string
	EventID        string
	EventHash      string
	EventTime      time.Time
	IngestionTime  time.Time
	Message        string
	MessagePattern string
	ReceivedAt     time.Time
}

// RowInserter writes a batch of rows to storage
type RowInserter interface {
	InsertRows(ctx context.Context, rows []EventRow) error
}

// BatchConfig configures batch behavior
type BatchConfig struct {
	MaxSize       int           // Maximum rows per batch (default: 500)
	FlushInterval time.Duration // Maximum time rows wait before flush (default: 5s)
}

// ClickHouse mirrors accepted events into a ClickHouse table in batches
type ClickHouse struct {
	mu         sync.Mutex
	inserter   RowInserter
	cfg        BatchConfig
	runID      string
	normalizer *normalizer.MessageNormalizer
	batch      []EventRow
	lastFlush  time.Time
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// flushTimeout bounds a single background or final flush
const flushTimeout = 10 * time.Second

// NewClickHouse creates a batching archive sink
func NewClickHouse(inserter RowInserter, cfg BatchConfig, runID string) *ClickHouse {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &ClickHouse{
		inserter:   inserter,
		cfg:        cfg,
		runID:      runID,
		normalizer: normalizer.NewMessageNormalizer(),
		batch:      make([]EventRow, 0, cfg.MaxSize),
		lastFlush:  time.Now(),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

// StartFlusher writes pending rows every FlushInterval, so rows do not wait for
// the next event while the tailed groups are quiet. It stops when ctx is done or
// on Close. Calling it more than once has no effect.
func (c *ClickHouse) StartFlusher(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.flushLoop(ctx, done)
}

func (c *ClickHouse) flushLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.flushPending(ctx)
		}
	}
}

// flushPending writes the batch if it is not empty. Shutdown of ctx does not
// abort an insert already in flight.
func (c *ClickHouse) flushPending(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.batch) == 0 {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	// Failures are logged by flushLocked; the batch is dropped either way
	_ = c.flushLocked(flushCtx)
}

// Emit adds the event to the pending batch and flushes when the batch is full
// or the flush interval has elapsed. Quiet periods are covered by StartFlusher.
func (c *ClickHouse) Emit(ctx context.Context, event domain.LogEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batch = append(c.batch, c.toRow(event))

	if len(c.batch) >= c.cfg.MaxSize || c.now().Sub(c.lastFlush) >= c.cfg.FlushInterval {
		return c.flushLocked(ctx)
	}
	return nil
}

// Flush forces writing all pending rows
func (c *ClickHouse) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// Close stops the background flusher and flushes pending rows
func (c *ClickHouse) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return c.Flush(ctx)
}

// Pending returns the number of rows waiting for a flush
func (c *ClickHouse) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batch)
}

func (c *ClickHouse) flushLocked(ctx context.Context) error {
	c.lastFlush = c.now()
	if len(c.batch) == 0 {
		return nil
	}

	snapshot := make([]EventRow, len(c.batch))
	copy(snapshot, c.batch)
	c.batch = c.batch[:0]

	start := time.Now()
	if err := c.inserter.InsertRows(ctx, snapshot); err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(snapshot)).
			Msg("Failed to archive events, batch dropped")
		return fmt.Errorf("failed to archive %d events: %w", len(snapshot), err)
	}

	log.Debug().
		Int("batch_size", len(snapshot)).
		Dur("duration", time.Since(start)).
		Msg("Events archived to ClickHouse")
	return nil
}

func (c *ClickHouse) toRow(event domain.LogEvent) EventRow {
	row := EventRow{
		RunID:          c.runID,
		LogGroup:       event.SourceGroup,
		LogStream:      event.LogStream,
		EventID:        event.EventID,
		EventHash:      eventHash(event.SourceGroup, event),
		EventTime:      ensureValidDateTime(event.Time()),
		Message:        event.Message,
		MessagePattern: c.normalizer.Normalize(event.Message),
		ReceivedAt:     c.now().UTC(),
	}
	if event.IngestionTime > 0 {
		row.IngestionTime = ensureValidDateTime(time.UnixMilli(event.IngestionTime).UTC())
	} else {
		row.IngestionTime = minClickHouseDateTime
	}
	return row
}

// TableInserter writes rows through a ClickHouse client
type TableInserter struct {
	client *ch.Client
	table  string
}

// NewTableInserter creates an inserter for table (database-qualified)
func NewTableInserter(client *ch.Client, table string) *TableInserter {
	return &TableInserter{client: client, table: table}
}

// EnsureTable creates the archive table if it does not exist
func (t *TableInserter) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id          String,
			log_group       LowCardinality(String),
			log_stream      String,
			event_id        String,
			event_hash      String,
			event_time      DateTime64(3, 'UTC'),
			ingestion_time  DateTime64(3, 'UTC'),
			message         String,
			message_pattern String,
			received_at     DateTime64(3, 'UTC')
		)
		ENGINE = ReplacingMergeTree(received_at)
		PARTITION BY toYYYYMMDD(event_time)
		ORDER BY (log_group, event_time, event_hash)
	`, t.table)

	if err := t.client.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.table, err)
	}
	return nil
}

// InsertRows sends rows as one batch
func (t *TableInserter) InsertRows(ctx context.Context, rows []EventRow) error {
	return t.client.InsertBatch(ctx, "INSERT INTO "+t.table, func(batch driver.Batch) error {
		for _, r := range rows {
			if err := batch.Append(
				r.RunID,
				r.LogGroup,
				r.LogStream,
				r.EventID,
				r.EventHash,
				r.EventTime,
				r.IngestionTime,
				r.Message,
				r.MessagePattern,
				r.ReceivedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
