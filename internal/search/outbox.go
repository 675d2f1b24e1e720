package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/metric"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/storage"
	"github.com/pltm/engine/internal/telemetry"
)

// outboxEntry represents a single row from the atom_search_outbox table.
type outboxEntry struct {
	ID        uuid.UUID
	AtomID    uuid.UUID
	Operation string
	Attempts  int
}

// AtomForIndex holds the fields needed to build a Qdrant point. Populated
// by the outbox worker from Postgres.
type AtomForIndex struct {
	ID         uuid.UUID
	SourceUser string
	AtomType   string
	Graph      model.GraphState
	Confidence float32
	Embedding  []float32
}

// OutboxWorker polls the atom_search_outbox table and syncs changes to
// Qdrant, grounded on the transactional-outbox drain loop this pack's
// teacher uses to keep a durability-critical write decoupled from an
// eventually-consistent vector index. When a dedicated notify connection is
// available it also reacts to ChannelAtoms notifications for near-immediate
// sync; the poll loop is the backstop either way.
type OutboxWorker struct {
	pool         *pgxpool.Pool
	notifyDB     *storage.DB
	index        *QdrantIndex
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int

	started     atomic.Bool
	cancelLoop  context.CancelFunc
	done        chan struct{}
	once        sync.Once
	drainOnce   sync.Once
	lastCleanup time.Time
	drainCh     chan context.Context
	wakeCh      chan struct{}
}

// NewOutboxWorker creates a new outbox worker. notifyDB is optional: when it
// carries a dedicated LISTEN/NOTIFY connection (storage.DB.HasNotifyConn),
// the worker wakes and drains as soon as a write lands on ChannelAtoms
// instead of waiting out the next poll tick; when nil, or the connection is
// unavailable, the worker falls back to plain polling on pollInterval.
func NewOutboxWorker(pool *pgxpool.Pool, notifyDB *storage.DB, index *QdrantIndex, logger *slog.Logger, pollInterval time.Duration, batchSize int) *OutboxWorker {
	return &OutboxWorker{
		pool:         pool,
		notifyDB:     notifyDB,
		index:        index,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		done:         make(chan struct{}),
		drainCh:      make(chan context.Context, 1),
		wakeCh:       make(chan struct{}, 1),
	}
}

// Start begins the background poll loop. Safe to call only once;
// subsequent calls are no-ops and log a warning.
func (w *OutboxWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("search outbox: Start called more than once, ignoring")
		return
	}
	w.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	if w.notifyDB != nil && w.notifyDB.HasNotifyConn() {
		if err := w.notifyDB.Listen(loopCtx, storage.ChannelAtoms); err != nil {
			w.logger.Warn("search outbox: listen on notify channel failed, falling back to polling only", "error", err)
		} else {
			go w.listenLoop(loopCtx)
		}
	}
	go w.pollLoop(loopCtx)
}

// listenLoop relays Postgres notifications on ChannelAtoms into wakeCh so
// pollLoop can drain without waiting for the next tick. Exits silently on
// context cancellation or a broken notify connection; the poll ticker keeps
// the worker progressing either way.
func (w *OutboxWorker) listenLoop(ctx context.Context) {
	for {
		_, _, err := w.notifyDB.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("search outbox: wait for notification", "error", err)
			return
		}
		select {
		case w.wakeCh <- struct{}{}:
		default:
		}
	}
}

// Drain signals the poll loop to stop, processes remaining entries, and
// blocks until done or the context expires. Safe to call multiple times;
// only the first call triggers the drain.
func (w *OutboxWorker) Drain(ctx context.Context) {
	w.drainOnce.Do(func() {
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		select {
		case w.drainCh <- ctx:
		case <-sendCtx.Done():
			w.logger.Warn("search outbox: drain context channel busy, final poll will use fallback timeout")
		}
		sendCancel()
		if w.cancelLoop != nil {
			w.cancelLoop()
		}
	})
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("search outbox: drain timed out")
	}
}

func (w *OutboxWorker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			var drainCtx context.Context
			select {
			case drainCtx = <-w.drainCh:
			default:
			}
			if drainCtx != nil {
				w.processBatch(drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				w.processBatch(fallbackCtx)
				cancel()
			}
			w.once.Do(func() { close(w.done) })
			return
		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			w.processBatch(batchCtx)
			cancel()
		case <-w.wakeCh:
			batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			w.processBatch(batchCtx)
			cancel()
			ticker.Reset(w.pollInterval)
		}
	}
}

// maxOutboxAttempts bounds retries before an entry is dead-lettered.
const maxOutboxAttempts = 10

func (w *OutboxWorker) processBatch(ctx context.Context) {
	if w.pool == nil {
		w.logger.Warn("search outbox: skipping batch, pool is nil")
		return
	}
	if w.index == nil {
		w.logger.Warn("search outbox: skipping batch, index is nil")
		return
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.logger.Error("search outbox: begin tx", "error", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, atom_id, operation, attempts
		 FROM atom_search_outbox
		 WHERE (locked_until IS NULL OR locked_until < now())
		   AND attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		maxOutboxAttempts, w.batchSize,
	)
	if err != nil {
		w.logger.Error("search outbox: select pending", "error", err)
		return
	}

	entries, err := scanOutboxEntries(rows)
	if err != nil {
		w.logger.Error("search outbox: scan entries", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	entryIDs := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		entryIDs[i] = e.ID
	}
	// Lock entries for 60s, longer than the 30s batchCtx timeout, so a
	// second worker can't pick up entries whose lock expires mid-process.
	if _, err := tx.Exec(ctx,
		`UPDATE atom_search_outbox SET locked_until = now() + interval '60 seconds' WHERE id = ANY($1)`,
		entryIDs,
	); err != nil {
		w.logger.Error("search outbox: lock entries", "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		w.logger.Error("search outbox: commit lock", "error", err)
		return
	}

	var upserts, deletes []outboxEntry
	for _, e := range entries {
		switch e.Operation {
		case "upsert":
			upserts = append(upserts, e)
		case "delete":
			deletes = append(deletes, e)
		}
	}

	if len(upserts) > 0 {
		w.processUpserts(ctx, upserts)
	}
	if len(deletes) > 0 {
		w.processDeletes(ctx, deletes)
	}

	if time.Since(w.lastCleanup) > time.Hour {
		w.cleanupDeadLetters(ctx)
		w.lastCleanup = time.Now()
	}
}

func (w *OutboxWorker) cleanupDeadLetters(ctx context.Context) {
	tag, err := w.pool.Exec(ctx,
		`DELETE FROM atom_search_outbox
		 WHERE attempts >= $1
		   AND (locked_until IS NULL OR locked_until < now())
		   AND created_at < now() - interval '7 days'`,
		maxOutboxAttempts,
	)
	if err != nil {
		w.logger.Error("search outbox: cleanup dead letters", "error", err)
		return
	}
	if tag.RowsAffected() > 0 {
		w.logger.Info("search outbox: cleaned dead-letter entries", "deleted", tag.RowsAffected())
	}
}

func (w *OutboxWorker) processUpserts(ctx context.Context, entries []outboxEntry) {
	atomIDs := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		atomIDs[i] = e.AtomID
	}

	atoms, err := w.fetchAtomsForIndex(ctx, atomIDs)
	if err != nil {
		w.logger.Error("search outbox: fetch atoms", "error", err, "count", len(atomIDs))
		w.failEntries(ctx, entries, err.Error())
		return
	}

	readyEntries, readyAtoms, pendingEntries := partitionUpsertEntries(entries, atoms)

	if len(readyEntries) > 0 {
		points := make([]Point, 0, len(readyAtoms))
		for _, a := range readyAtoms {
			points = append(points, Point{
				ID:         a.ID,
				SourceUser: a.SourceUser,
				AtomType:   a.AtomType,
				Graph:      a.Graph,
				Confidence: a.Confidence,
				Embedding:  a.Embedding,
			})
		}

		if err := w.index.Upsert(ctx, points); err != nil {
			w.logger.Error("search outbox: qdrant upsert", "error", err, "count", len(points))
			w.failEntries(ctx, readyEntries, err.Error())
		} else {
			w.succeedEntries(ctx, readyEntries)
			w.logger.Info("search outbox: upserted", "count", len(points))
		}
	}

	if len(pendingEntries) > 0 {
		// No embedding yet (or atom not visible yet). Defer with 30-minute
		// backoff; after max attempts, dead-letter rather than retry forever
		// (a permanently embedding-free atom type, or vector_enabled=false).
		var toDefer, toFail []outboxEntry
		for _, e := range pendingEntries {
			if e.Attempts >= maxOutboxAttempts-1 {
				toFail = append(toFail, e)
			} else {
				toDefer = append(toDefer, e)
			}
		}
		if len(toFail) > 0 {
			w.failEntries(ctx, toFail, "atom not ready after max defer cycles (missing embedding or not found)")
		}
		if len(toDefer) > 0 {
			w.deferPendingEntries(ctx, toDefer, "atom not ready for indexing (missing embedding or not found)")
		}
	}
}

func (w *OutboxWorker) processDeletes(ctx context.Context, entries []outboxEntry) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.AtomID
	}

	if err := w.index.DeleteByIDs(ctx, ids); err != nil {
		w.logger.Error("search outbox: qdrant delete", "error", err, "count", len(ids))
		w.failEntries(ctx, entries, err.Error())
		return
	}

	w.succeedEntries(ctx, entries)
	w.logger.Info("search outbox: deleted", "count", len(ids))
}

func (w *OutboxWorker) succeedEntries(ctx context.Context, entries []outboxEntry) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if _, err := w.pool.Exec(ctx,
		`DELETE FROM atom_search_outbox WHERE id = ANY($1)`, ids,
	); err != nil {
		w.logger.Error("search outbox: delete completed entries", "error", err)
	}
}

func (w *OutboxWorker) deferPendingEntries(ctx context.Context, entries []outboxEntry, errMsg string) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if _, err := w.pool.Exec(ctx,
		`UPDATE atom_search_outbox
		 SET attempts = attempts + 1, last_error = $1, locked_until = now() + interval '30 minutes'
		 WHERE id = ANY($2)`,
		errMsg, ids,
	); err != nil {
		w.logger.Error("search outbox: defer pending entries", "error", err)
	}
}

func (w *OutboxWorker) failEntries(ctx context.Context, entries []outboxEntry, errMsg string) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	// Exponential backoff, capped at 5 minutes, computed per row from that
	// entry's own attempt count.
	if _, err := w.pool.Exec(ctx,
		`UPDATE atom_search_outbox
		 SET attempts = attempts + 1, last_error = $1,
		     locked_until = now() + LEAST(POWER(2, attempts + 1), 300) * interval '1 second'
		 WHERE id = ANY($2)`,
		errMsg, ids,
	); err != nil {
		w.logger.Error("search outbox: update failed entries", "error", err)
	}

	for _, e := range entries {
		if e.Attempts+1 >= maxOutboxAttempts {
			w.logger.Warn("search outbox: dead-letter entry",
				"outbox_id", e.ID, "atom_id", e.AtomID, "operation", e.Operation, "attempts", e.Attempts+1)
		}
	}
}

func (w *OutboxWorker) fetchAtomsForIndex(ctx context.Context, ids []uuid.UUID) ([]AtomForIndex, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := w.pool.Query(ctx,
		`SELECT id, source_user, atom_type, graph, confidence, embedding
		 FROM atoms
		 WHERE id = ANY($1) AND embedding IS NOT NULL`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("search outbox: query atoms: %w", err)
	}
	defer rows.Close()

	var results []AtomForIndex
	for rows.Next() {
		var a AtomForIndex
		var emb pgvector.Vector
		var confidence float64
		if err := rows.Scan(&a.ID, &a.SourceUser, &a.AtomType, &a.Graph, &confidence, &emb); err != nil {
			return nil, fmt.Errorf("search outbox: scan atom: %w", err)
		}
		a.Confidence = float32(confidence)
		a.Embedding = emb.Slice()
		results = append(results, a)
	}
	return results, rows.Err()
}

// registerMetrics registers observable OTEL gauges for outbox health monitoring.
func (w *OutboxWorker) registerMetrics() {
	meter := telemetry.Meter("pltm/search/outbox")

	_, _ = meter.Int64ObservableGauge("pltm.search.outbox.depth",
		metric.WithDescription("Estimated pending entries in the atom search outbox (via pg_class.reltuples)"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			var estimate float64
			err := w.pool.QueryRow(ctx,
				`SELECT reltuples FROM pg_class WHERE relname = 'atom_search_outbox'`,
			).Scan(&estimate)
			if err != nil {
				return nil
			}
			if estimate < 0 {
				estimate = 0
			}
			o.Observe(int64(estimate))
			return nil
		}),
	)
}

func scanOutboxEntries(rows pgx.Rows) ([]outboxEntry, error) {
	defer rows.Close()
	var entries []outboxEntry
	for rows.Next() {
		var e outboxEntry
		if err := rows.Scan(&e.ID, &e.AtomID, &e.Operation, &e.Attempts); err != nil {
			return nil, fmt.Errorf("search outbox: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// partitionUpsertEntries splits outbox entries by whether the backing atom
// row is ready for indexing (a matching row with an embedding present).
func partitionUpsertEntries(entries []outboxEntry, atoms []AtomForIndex) (readyEntries []outboxEntry, readyAtoms []AtomForIndex, pendingEntries []outboxEntry) {
	byID := make(map[uuid.UUID]AtomForIndex, len(atoms))
	for _, a := range atoms {
		byID[a.ID] = a
	}

	readyEntries = make([]outboxEntry, 0, len(entries))
	readyAtoms = make([]AtomForIndex, 0, len(entries))
	pendingEntries = make([]outboxEntry, 0)
	for _, e := range entries {
		a, ok := byID[e.AtomID]
		if !ok {
			pendingEntries = append(pendingEntries, e)
			continue
		}
		readyEntries = append(readyEntries, e)
		readyAtoms = append(readyAtoms, a)
	}
	return readyEntries, readyAtoms, pendingEntries
}
