// Package framelog records completed acquisition frames into a local
// SQLite database. It subscribes at the engine's publisher boundary like
// any other external collaborator; the acquisition engine itself never
// touches persistence.
package framelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/lumascope/acquire"
	"github.com/lumascope/acquire/internal/config"
	"github.com/lumascope/acquire/internal/pubsub"
)

const (
	// EnvDBPath overrides the frame log database location.
	EnvDBPath = "ACQ_FRAMELOG_DB_PATH"
	// EnvFlushInterval overrides how often buffered rows are flushed.
	EnvFlushInterval = "ACQ_FRAMELOG_FLUSH_INTERVAL"

	defaultDBFileName    = "frames.sqlite"
	defaultFlushInterval = time.Second
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS frame_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	frame_index INTEGER NOT NULL,
	channel_id TEXT NOT NULL,
	channel_index INTEGER NOT NULL,
	n_rows INTEGER NOT NULL,
	n_cols INTEGER NOT NULL,
	intensity_units TEXT NOT NULL DEFAULT '',
	properties TEXT NOT NULL DEFAULT '{}',
	captured_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frame_records_session
	ON frame_records (source_id, session_id, frame_index);
`

// Row is one completed channel record as persisted.
type Row struct {
	SourceID       string
	SessionID      string
	FrameIndex     int
	ChannelID      string
	ChannelIndex   int
	Rows           int
	Cols           int
	IntensityUnits string
	Properties     string
	CapturedAt     time.Time
}

// Writer owns the SQLite handle for a frame log database.
type Writer struct {
	db *sql.DB
}

// ResolvePath returns the configured database path, defaulting to
// frames.sqlite in the working directory.
func ResolvePath() string {
	return config.String(EnvDBPath, defaultDBFileName)
}

// Open creates (if needed) and opens the frame log database at path.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.Wrap(err, "framelog: create db directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "framelog: open db")
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "framelog: create schema")
	}
	return &Writer{db: db}, nil
}

// Close releases the database handle.
func (w *Writer) Close() error {
	return w.db.Close()
}

// Write inserts rows in one transaction.
func (w *Writer) Write(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "framelog: begin tx")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO frame_records
		(source_id, session_id, frame_index, channel_id, channel_index,
		 n_rows, n_cols, intensity_units, properties, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return pkgerrors.Wrap(err, "framelog: prepare insert")
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.SourceID, row.SessionID, row.FrameIndex, row.ChannelID,
			row.ChannelIndex, row.Rows, row.Cols, row.IntensityUnits,
			row.Properties, row.CapturedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			tx.Rollback()
			return pkgerrors.Wrap(err, "framelog: insert row")
		}
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "framelog: commit")
	}
	return nil
}

// CountFrames returns the number of distinct completed frames recorded
// for a source.
func (w *Writer) CountFrames(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := w.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id || ':' || frame_index)
		 FROM frame_records WHERE source_id = ?`, sourceID).Scan(&count)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "framelog: count frames")
	}
	return count, nil
}

// Recorder buffers completed-frame records published by a source and
// flushes them to a Writer on a background loop, so the acquisition
// worker is never blocked on the database.
type Recorder struct {
	writer *Writer
	sub    *pubsub.Subscription[acquire.ChannelsUpdate]

	mu      sync.Mutex
	pending []Row

	flushInterval time.Duration
	done          chan struct{}
	stopped       chan struct{}
}

// NewRecorder attaches a recorder to the source's publisher boundary.
// Only complete channel records are persisted; partial band updates are
// skipped.
func NewRecorder(source *acquire.HardwareSource, writer *Writer) *Recorder {
	r := &Recorder{
		writer:        writer,
		flushInterval: config.Duration(EnvFlushInterval, defaultFlushInterval),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	r.sub = source.SubscribeChannelsUpdated(func(update acquire.ChannelsUpdate) {
		r.enqueue(update)
	})
	go r.flushLoop()
	return r
}

func (r *Recorder) enqueue(update acquire.ChannelsUpdate) {
	rows := make([]Row, 0, len(update.Records))
	for _, rec := range update.Records {
		if rec.State != acquire.StateComplete {
			continue
		}
		props := "{}"
		if len(rec.Properties) > 0 {
			if raw, err := json.Marshal(rec.Properties); err == nil {
				props = string(raw)
			}
		}
		rows = append(rows, Row{
			SourceID:       update.SourceID,
			SessionID:      rec.SessionID,
			FrameIndex:     rec.FrameIndex,
			ChannelID:      rec.ChannelID,
			ChannelIndex:   rec.Index,
			Rows:           rec.Shape.Rows,
			Cols:           rec.Shape.Cols,
			IntensityUnits: rec.Intensity.Units,
			Properties:     props,
			CapturedAt:     rec.CapturedAt,
		})
	}
	if len(rows) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, rows...)
	r.mu.Unlock()
}

func (r *Recorder) flushLoop() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			r.flushOnce()
			return
		case <-ticker.C:
			r.flushOnce()
		}
	}
}

func (r *Recorder) flushOnce() {
	r.mu.Lock()
	rows := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.writer.Write(ctx, rows); err != nil {
		log.Error().Err(err).Int("rows", len(rows)).Msg("frame log flush failed")
	}
}

// Close unsubscribes from the source, flushes buffered rows, and stops
// the flush loop. The underlying Writer stays open.
func (r *Recorder) Close() {
	r.sub.Close()
	close(r.done)
	<-r.stopped
}
