package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/queue"
)

// Writer archives settlement results to PostgreSQL. It is an optional
// sink: results queue through a growable ring, accumulate into batches,
// and insert with ON CONFLICT DO NOTHING keyed by epoch id, so replays
// after a restart are harmless.
type Writer struct {
	cfg    config.ArchiveConfig
	logger *slog.Logger

	input *queue.Ring[model.SettlementResult]
	db    *pgxpool.Pool

	batch   []settlementRow
	batchMu sync.Mutex

	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// Metrics holds cumulative writer counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// settlementRow is the flattened database form of a result.
type settlementRow struct {
	EpochID       string
	Question      string
	Category      string
	Answer        string
	Tier          int
	HashValue     int
	WinnerBetID   string
	WinnerAgentID string
	WinnerName    string
	PrizeSats     int64
	PoolSats      int64
	Participants  int
	Digest        string
	SettledAt     time.Time
}

// NewWriter creates a settlement archive writer.
func NewWriter(cfg config.ArchiveConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  queue.NewRing[model.SettlementResult](cfg.BufferSize),
		batch:  make([]settlementRow, 0, cfg.BatchSize),
	}
}

// EmitEpochOpened is a no-op; the archive records settled rows only.
func (w *Writer) EmitEpochOpened(model.Epoch) {}

// EmitSettlement queues a result for archival without blocking.
func (w *Writer) EmitSettlement(res model.SettlementResult) {
	w.input.Push(res)
}

// Start begins consuming results and writing batches.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue, flushes the final batch, and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Anything still queued goes into the final flush.
	for _, res := range w.input.Drain(0) {
		w.append(res)
	}
	w.flush()

	w.logger.Info("archive writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads queued results and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		res, ok := w.input.TryPop()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		w.append(res)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// append adds a result to the batch, flushing when full.
func (w *Writer) append(res model.SettlementResult) {
	row := settlementRow{
		EpochID:       res.EpochID,
		Question:      res.Topic.Question,
		Category:      res.Topic.Category,
		Answer:        res.Topic.Answer,
		Tier:          res.Tier,
		HashValue:     int(res.HashValue),
		WinnerBetID:   res.WinnerBetID,
		WinnerAgentID: res.WinnerAgentID,
		WinnerName:    res.WinnerName,
		PrizeSats:     res.Prize,
		PoolSats:      res.TotalPool,
		Participants:  res.Participants,
		Digest:        res.Digest,
		SettledAt:     res.SettledAt,
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]settlementRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed settlements",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(rows []settlementRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO settlements (
				epoch_id, question, category, answer, tier, hash_value,
				winner_bet_id, winner_agent_id, winner_name,
				prize_sats, pool_sats, participants, digest, settled_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (epoch_id) DO NOTHING
		`, r.EpochID, r.Question, r.Category, r.Answer, r.Tier, r.HashValue,
			r.WinnerBetID, r.WinnerAgentID, r.WinnerName,
			r.PrizeSats, r.PoolSats, r.Participants, r.Digest, r.SettledAt)
	}

	results := w.db.SendBatch(context.Background(), batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
