package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool. The handle is injected
// once at process start; the store never opens connections of its own.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

// Open connects to postgres and verifies the connection.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *postgresStore) CreateRecording(ctx context.Context, rec *model.Recording) error {
	query := `
		INSERT INTO recordings (
			id, title, media_path, size_bytes, mime_type,
			status, stage, progress, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Title, rec.MediaPath, rec.SizeBytes, rec.MimeType,
		rec.Status, rec.Stage, rec.Progress, rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	return nil
}

func (s *postgresStore) GetRecording(ctx context.Context, id uuid.UUID) (*model.Recording, error) {
	query := `
		SELECT id, title, media_path, size_bytes, mime_type,
		       status, stage, progress, error, created_at, updated_at
		FROM recordings
		WHERE id = $1
	`
	var rec model.Recording
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Title, &rec.MediaPath, &rec.SizeBytes, &rec.MimeType,
		&rec.Status, &rec.Stage, &rec.Progress, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return &rec, nil
}

func (s *postgresStore) ListRecordings(ctx context.Context, limit, offset int) ([]model.Recording, error) {
	query := `
		SELECT id, title, media_path, size_bytes, mime_type,
		       status, stage, progress, error, created_at, updated_at
		FROM recordings
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var list []model.Recording
	for rows.Next() {
		var rec model.Recording
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.MediaPath, &rec.SizeBytes, &rec.MimeType,
			&rec.Status, &rec.Stage, &rec.Progress, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *postgresStore) CountRecordings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recordings: %w", err)
	}
	return n, nil
}

func (s *postgresStore) UpdateRecordingStage(ctx context.Context, id uuid.UUID, stage model.Stage, progress int) error {
	query := `
		UPDATE recordings
		SET stage = $1, progress = $2, updated_at = NOW()
		WHERE id = $3
	`
	res, err := s.db.ExecContext(ctx, query, stage, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update recording stage: %w", err)
	}
	return checkAffected(res, id)
}

func (s *postgresStore) UpdateRecordingState(ctx context.Context, id uuid.UUID, status model.Status, stage model.Stage, progress int, errMsg *string) error {
	query := `
		UPDATE recordings
		SET status = $1, stage = $2, progress = $3, error = $4, updated_at = NOW()
		WHERE id = $5
	`
	res, err := s.db.ExecContext(ctx, query, status, stage, progress, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update recording state: %w", err)
	}
	return checkAffected(res, id)
}

func (s *postgresStore) DeleteRecording(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	return checkAffected(res, id)
}

func (s *postgresStore) CreateTranscript(ctx context.Context, tr *model.Transcript) error {
	query := `
		INSERT INTO transcripts (
			id, recording_id, text, language, duration, confidence, word_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (recording_id) DO UPDATE SET
			id = EXCLUDED.id,
			text = EXCLUDED.text,
			language = EXCLUDED.language,
			duration = EXCLUDED.duration,
			confidence = EXCLUDED.confidence,
			word_count = EXCLUDED.word_count,
			created_at = EXCLUDED.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		tr.ID, tr.RecordingID, tr.Text, tr.Language, tr.Duration, tr.Confidence, tr.WordCount, tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}
	return nil
}

func (s *postgresStore) GetTranscriptByRecording(ctx context.Context, recordingID uuid.UUID) (*model.Transcript, error) {
	query := `
		SELECT id, recording_id, text, language, duration, confidence, word_count, created_at
		FROM transcripts
		WHERE recording_id = $1
	`
	var tr model.Transcript
	err := s.db.QueryRowContext(ctx, query, recordingID).Scan(
		&tr.ID, &tr.RecordingID, &tr.Text, &tr.Language, &tr.Duration, &tr.Confidence, &tr.WordCount, &tr.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript for recording %s: %w", recordingID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &tr, nil
}

func (s *postgresStore) DeleteTranscriptByRecording(ctx context.Context, recordingID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE recording_id = $1`, recordingID)
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

func (s *postgresStore) CreateChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chunks (
			id, transcript_id, recording_id, idx, text, length,
			word_count, start_time, end_time, confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.TranscriptID, c.RecordingID, c.Index, c.Text, c.Length,
			c.WordCount, c.Start, c.End, c.Confidence, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit()
}

func (s *postgresStore) ListChunksByRecording(ctx context.Context, recordingID uuid.UUID) ([]model.Chunk, error) {
	query := `
		SELECT id, transcript_id, recording_id, idx, text, length,
		       word_count, start_time, end_time, confidence, created_at
		FROM chunks
		WHERE recording_id = $1
		ORDER BY idx ASC
	`
	rows, err := s.db.QueryContext(ctx, query, recordingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(
			&c.ID, &c.TranscriptID, &c.RecordingID, &c.Index, &c.Text, &c.Length,
			&c.WordCount, &c.Start, &c.End, &c.Confidence, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *postgresStore) DeleteChunksByRecording(ctx context.Context, recordingID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE recording_id = $1`, recordingID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (s *postgresStore) CreateExchange(ctx context.Context, ex *model.Exchange) error {
	citations, err := json.Marshal(ex.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	sources, err := json.Marshal(ex.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := `
		INSERT INTO exchanges (
			id, recording_id, question, answer, citations, sources, created_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		ex.ID, ex.RecordingID, ex.Question, ex.Answer, citations, sources, ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}
	return nil
}

func (s *postgresStore) ListExchangesByRecording(ctx context.Context, recordingID uuid.UUID, limit, offset int) ([]model.Exchange, error) {
	query := `
		SELECT id, recording_id, question, answer, citations, sources, created_at
		FROM exchanges
		WHERE recording_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, recordingID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	defer rows.Close()

	var list []model.Exchange
	for rows.Next() {
		var (
			ex        model.Exchange
			citations []byte
			sources   []byte
		)
		if err := rows.Scan(&ex.ID, &ex.RecordingID, &ex.Question, &ex.Answer, &citations, &sources, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &ex.Citations); err != nil {
				return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
			}
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &ex.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		list = append(list, ex)
	}
	return list, rows.Err()
}

func (s *postgresStore) DeleteExchange(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete exchange: %w", err)
	}
	return checkAffected(res, id)
}

func (s *postgresStore) DeleteExchangesByRecording(ctx context.Context, recordingID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE recording_id = $1`, recordingID)
	if err != nil {
		return fmt.Errorf("failed to delete exchanges: %w", err)
	}
	return nil
}

func checkAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	return nil
}
