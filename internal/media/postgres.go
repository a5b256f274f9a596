// internal/media/postgres.go
// PostgreSQL implementation of the media Store, for deployments where
// attachments must outlive a single node.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wishplanet/wishplanet-go/internal/model"
)

type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a PostgreSQL media store. It establishes a connection
// pool and initializes the schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates the media table and indexes if they don't already exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Media files table holding attachment payloads and metadata
		CREATE TABLE IF NOT EXISTS media_files (
		    id TEXT PRIMARY KEY,                      -- Generated file id (ULID-based)
		    name TEXT NOT NULL,                       -- Original file name
		    size BIGINT NOT NULL,                     -- Size in bytes
		    mime_type TEXT NOT NULL,                  -- Full MIME type
		    kind TEXT NOT NULL,                       -- Coarse category (image/audio/video)
		    data BYTEA NOT NULL,                      -- Raw binary payload
		    uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),  -- Upload time
		    seal_id TEXT NOT NULL DEFAULT ''          -- Back-reference to the owning wish
		);

		-- Indexes mirroring the lookup paths: by owning wish, by category, by time
		CREATE INDEX IF NOT EXISTS idx_media_files_seal_id ON media_files(seal_id) WHERE seal_id != '';
		CREATE INDEX IF NOT EXISTS idx_media_files_kind ON media_files(kind);
		CREATE INDEX IF NOT EXISTS idx_media_files_uploaded_at ON media_files(uploaded_at);
	`
	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *postgres) StoreFile(ctx context.Context, file model.MediaFile) error {
	query := `INSERT INTO media_files (id, name, size, mime_type, kind, data, uploaded_at, seal_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := p.db.Exec(ctx, query,
		file.ID,
		file.Name,
		file.Size,
		file.MimeType,
		string(file.Kind),
		file.Data,
		file.UploadedAt,
		file.SealID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

func (p *postgres) GetFile(ctx context.Context, id string) (*model.MediaFile, error) {
	query := `SELECT id, name, size, mime_type, kind, data, uploaded_at, seal_id
	          FROM media_files WHERE id = $1`

	var file model.MediaFile
	var kind string
	err := p.db.QueryRow(ctx, query, id).Scan(
		&file.ID,
		&file.Name,
		&file.Size,
		&file.MimeType,
		&kind,
		&file.Data,
		&file.UploadedAt,
		&file.SealID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	file.Kind = model.MediaKind(kind)
	return &file, nil
}

func (p *postgres) GetFilesBySeal(ctx context.Context, sealID string) ([]model.MediaFile, error) {
	// Ordering by id yields upload order; the ids are time-sortable.
	query := `SELECT id, name, size, mime_type, kind, data, uploaded_at, seal_id
	          FROM media_files WHERE seal_id = $1 ORDER BY id ASC`

	rows, err := p.db.Query(ctx, query, sealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []model.MediaFile
	for rows.Next() {
		var file model.MediaFile
		var kind string
		if err := rows.Scan(
			&file.ID,
			&file.Name,
			&file.Size,
			&file.MimeType,
			&kind,
			&file.Data,
			&file.UploadedAt,
			&file.SealID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		file.Kind = model.MediaKind(kind)
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return files, nil
}

func (p *postgres) UpdateSealID(ctx context.Context, id, sealID string) error {
	query := `UPDATE media_files SET seal_id = $1 WHERE id = $2`

	result, err := p.db.Exec(ctx, query, sealID, id)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) DeleteFile(ctx context.Context, id string) error {
	result, err := p.db.Exec(ctx, `DELETE FROM media_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) ClearAll(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM media_files`); err != nil {
		return fmt.Errorf("failed to clear files: %w", err)
	}
	return nil
}
