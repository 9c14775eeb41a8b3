package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"penguinapi/penguin"
)

const maxRecentLimit = 200

// PredictionRecord is one served prediction as stored in the audit log.
type PredictionRecord struct {
	RequestID string           `json:"request_id"`
	Features  penguin.Features `json:"features"`
	Result    penguin.Result   `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuditLog writes prediction records to SQLite from a single background
// worker. Record never blocks: when the queue is full the record is dropped.
type AuditLog struct {
	db     *sql.DB
	queue  chan PredictionRecord
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// OpenAuditLog initializes the SQLite database at path and starts the writer.
func OpenAuditLog(path string, buffer int, logger *zap.Logger) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        bill_length_mm REAL NOT NULL,
        bill_depth_mm REAL NOT NULL,
        flipper_length_mm REAL NOT NULL,
        body_mass_g REAL NOT NULL,
        year INTEGER NOT NULL,
        sex TEXT NOT NULL,
        island TEXT NOT NULL,
        species TEXT NOT NULL,
        confidence REAL NOT NULL,
        probabilities TEXT NOT NULL,
        model_version TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create audit tables: %w", err)
	}

	if buffer <= 0 {
		buffer = 1024
	}
	a := &AuditLog{
		db:     database,
		queue:  make(chan PredictionRecord, buffer),
		logger: logger,
	}
	a.wg.Add(1)
	go a.run()
	return a, nil
}

// Record queues rec for writing and reports whether it was accepted.
func (a *AuditLog) Record(rec PredictionRecord) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- rec:
		return true
	default:
		a.logger.Warn("audit queue full, dropping record", zap.String("request_id", rec.RequestID))
		return false
	}
}

func (a *AuditLog) run() {
	defer a.wg.Done()
	for rec := range a.queue {
		if err := a.insert(rec); err != nil {
			a.logger.Error("write audit record", zap.String("request_id", rec.RequestID), zap.Error(err))
		}
	}
}

func (a *AuditLog) insert(rec PredictionRecord) error {
	probs, err := json.Marshal(rec.Result.Probabilities)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT INTO predictions (request_id, bill_length_mm, bill_depth_mm, flipper_length_mm,
        body_mass_g, year, sex, island, species, confidence, probabilities, model_version, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	f := rec.Features
	_, err = a.db.Exec(query, rec.RequestID, f.BillLengthMM, f.BillDepthMM, f.FlipperLengthMM,
		f.BodyMassG, f.Year, string(f.Sex), string(f.Island), string(rec.Result.Species),
		rec.Result.Confidence, string(probs), rec.Result.ModelVersion, createdAt.UTC())
	return err
}

// Recent returns up to limit records, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	query := `SELECT request_id, bill_length_mm, bill_depth_mm, flipper_length_mm, body_mass_g, year,
        sex, island, species, confidence, probabilities, model_version, created_at
        FROM predictions ORDER BY id DESC LIMIT ?`
	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var (
			rec     PredictionRecord
			sex     string
			island  string
			species string
			probs   string
			version sql.NullString
		)
		f := &rec.Features
		if err := rows.Scan(&rec.RequestID, &f.BillLengthMM, &f.BillDepthMM, &f.FlipperLengthMM,
			&f.BodyMassG, &f.Year, &sex, &island, &species, &rec.Result.Confidence, &probs,
			&version, &rec.CreatedAt); err != nil {
			return nil, err
		}
		f.Sex = penguin.Sex(sex)
		f.Island = penguin.Island(island)
		rec.Result.Species = penguin.Species(species)
		rec.Result.ModelVersion = version.String
		if err := json.Unmarshal([]byte(probs), &rec.Result.Probabilities); err != nil {
			return nil, fmt.Errorf("decode probabilities: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close stops accepting records, flushes the queue and closes the database.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	return a.db.Close()
}
