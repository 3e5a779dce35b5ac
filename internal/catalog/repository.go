package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository is the record-store contract the pipeline depends on. It
// mirrors the flat entity-store operations of a partition/row-key table:
// inserts fail on duplicate keys, replaces overwrite whole rows, merges
// update only the fields present on the given record.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	Replace(ctx context.Context, rec *Record) error
	Merge(ctx context.Context, rec *Record) error
	Get(ctx context.Context, partition, name string) (*Record, error)
	List(ctx context.Context, partition string, limit int) ([]*Record, error)
	ListByContentIDs(ctx context.Context, partition string, contentIDs []string) ([]*Record, error)
	Delete(ctx context.Context, partition, name string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `partition_key, row_key, content_id, video_id, video_url,
	thumbnail_url, breakdown_url, container, storage_base_uri, status,
	processing_progress, size, timestamp`

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Partition, rec.Name, rec.ContentID, rec.VideoID, rec.VideoURL,
		rec.ThumbnailURL, rec.BreakdownURL, rec.Container, rec.StorageBaseURI,
		rec.Status, rec.ProcessingProgress, rec.Size, now())
	return err
}

func (r *SQLiteRepository) Replace(ctx context.Context, rec *Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE videos SET
			content_id = ?, video_id = ?, video_url = ?, thumbnail_url = ?,
			breakdown_url = ?, container = ?, storage_base_uri = ?, status = ?,
			processing_progress = ?, size = ?, timestamp = ?
		WHERE partition_key = ? AND row_key = ?
	`, rec.ContentID, rec.VideoID, rec.VideoURL, rec.ThumbnailURL,
		rec.BreakdownURL, rec.Container, rec.StorageBaseURI, rec.Status,
		rec.ProcessingProgress, rec.Size, now(), rec.Partition, rec.Name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s/%s not found", rec.Partition, rec.Name)
	}
	return nil
}

// Merge updates only the non-empty fields of rec. The status field is
// guarded so a merge never moves a record backwards; the merge still
// applies the remaining fields when the status is rejected.
func (r *SQLiteRepository) Merge(ctx context.Context, rec *Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM videos WHERE partition_key = ? AND row_key = ?",
		rec.Partition, rec.Name).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("record %s/%s not found", rec.Partition, rec.Name)
	}
	if err != nil {
		return err
	}

	status := rec.Status
	if status != "" && !Advances(current, status) {
		status = ""
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE videos SET
			content_id = COALESCE(NULLIF(?, ''), content_id),
			video_id = COALESCE(NULLIF(?, ''), video_id),
			video_url = COALESCE(NULLIF(?, ''), video_url),
			thumbnail_url = COALESCE(NULLIF(?, ''), thumbnail_url),
			breakdown_url = COALESCE(NULLIF(?, ''), breakdown_url),
			container = COALESCE(NULLIF(?, ''), container),
			storage_base_uri = COALESCE(NULLIF(?, ''), storage_base_uri),
			status = COALESCE(NULLIF(?, ''), status),
			processing_progress = COALESCE(NULLIF(?, ''), processing_progress),
			size = COALESCE(NULLIF(?, ''), size),
			timestamp = ?
		WHERE partition_key = ? AND row_key = ?
	`, rec.ContentID, rec.VideoID, rec.VideoURL, rec.ThumbnailURL,
		rec.BreakdownURL, rec.Container, rec.StorageBaseURI, status,
		rec.ProcessingProgress, rec.Size, now(), rec.Partition, rec.Name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) Get(ctx context.Context, partition, name string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM videos
		WHERE partition_key = ? AND row_key = ?
	`, partition, name)
	return scanRecord(row)
}

func (r *SQLiteRepository) List(ctx context.Context, partition string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM videos
		WHERE partition_key = ? ORDER BY row_key LIMIT ?
	`, partition, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *SQLiteRepository) ListByContentIDs(ctx context.Context, partition string, contentIDs []string) ([]*Record, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(contentIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(contentIDs)+1)
	args = append(args, partition)
	for _, id := range contentIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM videos
		WHERE partition_key = ? AND content_id IN (`+placeholders+`)
		ORDER BY row_key
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *SQLiteRepository) Delete(ctx context.Context, partition, name string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM videos WHERE partition_key = ? AND row_key = ?",
		partition, name)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOne(row scannable) (*Record, error) {
	var rec Record
	var ts string
	err := row.Scan(&rec.Partition, &rec.Name, &rec.ContentID, &rec.VideoID,
		&rec.VideoURL, &rec.ThumbnailURL, &rec.BreakdownURL, &rec.Container,
		&rec.StorageBaseURI, &rec.Status, &rec.ProcessingProgress, &rec.Size,
		&ts)
	if err != nil {
		return nil, err
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return &rec, nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	rec, err := scanOne(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
