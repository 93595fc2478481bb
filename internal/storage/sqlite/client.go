package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/storage/models"
	"github.com/greasemonkey/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	// Foreign keys are per connection, so they go in the DSN for the whole pool.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		vehicle_make TEXT,
		vehicle_model TEXT,
		vehicle_year INTEGER,
		extracted_text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

	CREATE TABLE IF NOT EXISTS answer_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		query_text TEXT NOT NULL,
		vehicle_make TEXT,
		vehicle_model TEXT,
		vehicle_year INTEGER,
		answer TEXT NOT NULL,
		confidence REAL,
		consistency_score REAL,
		accuracy_indicators TEXT,
		used_documents INTEGER DEFAULT 0,
		sample_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answers_user ON answer_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_answers_created ON answer_history(created_at);

	CREATE TABLE IF NOT EXISTS answer_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		answer_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		title TEXT,
		relevance_score REAL,
		FOREIGN KEY (answer_id) REFERENCES answer_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_answer ON answer_sources(answer_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		answer_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (answer_id) REFERENCES answer_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_answer ON feedback(answer_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, user_id, title, vehicle_make, vehicle_model, vehicle_year, extracted_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			vehicle_make = excluded.vehicle_make,
			vehicle_model = excluded.vehicle_model,
			vehicle_year = excluded.vehicle_year,
			extracted_text = excluded.extracted_text,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.Title,
		doc.VehicleMake,
		doc.VehicleModel,
		doc.VehicleYear,
		doc.ExtractedText,
		doc.CreatedAt.UnixMilli(),
		doc.UpdatedAt.UnixMilli(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("user_id", doc.UserID))
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT id, user_id, title, vehicle_make, vehicle_model, vehicle_year, extracted_text, created_at, updated_at
		FROM documents WHERE id = ?`

	doc, err := scanDocument(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns every document a user uploaded, oldest first.
func (c *Client) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	query := `
		SELECT id, user_id, title, vehicle_make, vehicle_model, vehicle_year, extracted_text, created_at, updated_at
		FROM documents
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, *doc)
	}

	return docs, rows.Err()
}

func (c *Client) DeleteDocument(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc                  models.Document
		vehicleMake, model   sql.NullString
		year                 sql.NullInt64
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Title,
		&vehicleMake,
		&model,
		&year,
		&doc.ExtractedText,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.VehicleMake = vehicleMake.String
	doc.VehicleModel = model.String
	doc.VehicleYear = int(year.Int64)
	doc.CreatedAt = time.UnixMilli(createdAt)
	doc.UpdatedAt = time.UnixMilli(updatedAt)
	return &doc, nil
}

// InsertAnswerRecord stores an answer with its sources in one transaction.
func (c *Client) InsertAnswerRecord(ctx context.Context, record *models.AnswerRecord) error {
	indicators, err := json.Marshal(record.AccuracyIndicators)
	if err != nil {
		return fmt.Errorf("failed to marshal indicators: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO answer_history (id, user_id, query_text, vehicle_make, vehicle_model, vehicle_year, answer,
			confidence, consistency_score, accuracy_indicators, used_documents, sample_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	usedDocuments := 0
	if record.UsedDocuments {
		usedDocuments = 1
	}

	_, err = tx.ExecContext(ctx,
		query,
		record.ID,
		record.UserID,
		record.QueryText,
		record.VehicleMake,
		record.VehicleModel,
		record.VehicleYear,
		record.Answer,
		record.Confidence,
		record.ConsistencyScore,
		string(indicators),
		usedDocuments,
		record.SampleCount,
		record.LatencyMS,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert answer record: %w", err)
	}

	for _, src := range record.Sources {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO answer_sources (answer_id, document_id, title, relevance_score) VALUES (?, ?, ?, ?)`,
			record.ID,
			src.DocumentID,
			src.Title,
			src.RelevanceScore,
		)
		if err != nil {
			return fmt.Errorf("failed to insert answer source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit answer record: %w", err)
	}

	logger.Info("Answer recorded",
		zap.String("answer_id", record.ID),
		zap.Float64("confidence", record.Confidence),
		zap.Int("sources", len(record.Sources)),
	)

	return nil
}

// GetAnswerHistory returns a user's most recent answers, newest first, with
// their sources.
func (c *Client) GetAnswerHistory(ctx context.Context, userID string, limit int) ([]models.AnswerRecord, error) {
	query := `
		SELECT id, query_text, vehicle_make, vehicle_model, vehicle_year, answer, confidence,
			consistency_score, accuracy_indicators, used_documents, sample_count, latency_ms, created_at
		FROM answer_history
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get answer history: %w", err)
	}
	defer rows.Close()

	records := []models.AnswerRecord{}
	for rows.Next() {
		var (
			r                  models.AnswerRecord
			vehicleMake, model sql.NullString
			year               sql.NullInt64
			indicators         sql.NullString
			usedDocuments      int
			createdAt          int64
		)

		err := rows.Scan(&r.ID, &r.QueryText, &vehicleMake, &model, &year, &r.Answer, &r.Confidence,
			&r.ConsistencyScore, &indicators, &usedDocuments, &r.SampleCount, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.UserID = userID
		r.VehicleMake = vehicleMake.String
		r.VehicleModel = model.String
		r.VehicleYear = int(year.Int64)
		r.UsedDocuments = usedDocuments == 1
		r.CreatedAt = time.UnixMilli(createdAt)
		if indicators.Valid && indicators.String != "" {
			if err := json.Unmarshal([]byte(indicators.String), &r.AccuracyIndicators); err != nil {
				logger.Warn("Corrupt accuracy indicators", zap.String("answer_id", r.ID), zap.Error(err))
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read answer history: %w", err)
	}

	for i := range records {
		sources, err := c.answerSources(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Sources = sources
	}

	return records, nil
}

func (c *Client) answerSources(ctx context.Context, answerID string) ([]models.AnswerSource, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, answer_id, document_id, title, relevance_score FROM answer_sources WHERE answer_id = ? ORDER BY id`,
		answerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get answer sources: %w", err)
	}
	defer rows.Close()

	var sources []models.AnswerSource
	for rows.Next() {
		var (
			s     models.AnswerSource
			title sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.AnswerID, &s.DocumentID, &title, &s.RelevanceScore); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Title = title.String
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	query := `INSERT INTO feedback (answer_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`

	helpful := 0
	if feedback.Helpful {
		helpful = 1
	}

	_, err := c.db.ExecContext(ctx,
		query,
		feedback.AnswerID,
		helpful,
		feedback.Comment,
		time.Now().UnixMilli(),
	)

	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("answer_id", feedback.AnswerID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}
