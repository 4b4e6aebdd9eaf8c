package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytup/internal/models"
	"github.com/desertthunder/ytup/internal/shared"
)

const uploadColumns = `id, sequence, user_name, file_path, title, privacy, playlist, video_id, playlist_id,
	status, error, attempts, created_at, updated_at, deleted_at`

// UploadRepository implements models.Repository[*models.Upload].
type UploadRepository struct {
	db *sql.DB
}

// NewUploadRepository creates a new UploadRepository with the given database connection
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts upload with a generated ID and sequence
func (r *UploadRepository) Create(upload *models.Upload) error {
	if err := upload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "uploads")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	upload.SetID(shared.GenerateID())
	upload.SetSequence(sequence)

	_, err = r.db.Exec(`INSERT INTO uploads (`+uploadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		upload.ID(),
		sequence,
		upload.User(),
		upload.FilePath(),
		upload.Title(),
		upload.Privacy(),
		upload.Playlist(),
		upload.VideoID(),
		upload.PlaylistID(),
		string(upload.Status()),
		upload.Error(),
		upload.Attempts(),
		upload.CreatedAt(),
		upload.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

// Get retrieves an upload by ID, excluding soft-deleted rows
func (r *UploadRepository) Get(id string) (*models.Upload, error) {
	row := r.db.QueryRow(`SELECT `+uploadColumns+` FROM uploads WHERE id = ? AND deleted_at IS NULL`, id)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUploadNotFound, id)
	}
	return upload, err
}

// Update persists the mutable fields of upload
func (r *UploadRepository) Update(upload *models.Upload) error {
	if err := upload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	upload.SetUpdatedAt(now)

	result, err := r.db.Exec(`
		UPDATE uploads
		SET title = ?, privacy = ?, playlist = ?, video_id = ?, playlist_id = ?, status = ?, error = ?, attempts = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		upload.Title(),
		upload.Privacy(),
		upload.Playlist(),
		upload.VideoID(),
		upload.PlaylistID(),
		string(upload.Status()),
		upload.Error(),
		upload.Attempts(),
		now,
		upload.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	return expectOne(result, shared.ErrUploadNotFound, upload.ID())
}

// Delete soft-deletes an upload by ID
func (r *UploadRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE uploads SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return expectOne(result, shared.ErrUploadNotFound, id)
}

// List returns uploads ordered by sequence. Supported criteria: "user", "status", "limit".
func (r *UploadRepository) List(criteria map[string]any) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE deleted_at IS NULL`
	var args []any

	if user, ok := criteria["user"].(string); ok && user != "" {
		query += " AND user_name = ?"
		args = append(args, user)
	}
	if status, ok := criteria["status"].(models.UploadStatus); ok && status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence ASC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return uploads, nil
}

func scanUpload(s scanner) (*models.Upload, error) {
	var (
		id, user, filePath, title, privacy, playlist string
		videoID, playlistID, status, errMsg          string
		sequence, attempts                           int
		createdAt, updatedAt                         time.Time
		deletedAt                                    sql.NullTime
	)

	err := s.Scan(&id, &sequence, &user, &filePath, &title, &privacy, &playlist, &videoID, &playlistID,
		&status, &errMsg, &attempts, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}

	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	return models.RestoreUpload(id, sequence, user, filePath, title, privacy, playlist, videoID, playlistID,
		models.UploadStatus(status), errMsg, attempts, createdAt, updatedAt, deleted), nil
}

func expectOne(result sql.Result, notFound error, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
