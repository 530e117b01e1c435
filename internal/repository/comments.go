package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

// ErrInvalidComment comment payload rejected before insert
var ErrInvalidComment = errors.New("invalid comment")

// CommentRepository comments table
type CommentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *sql.DB, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{
		db:     db,
		logger: logger,
	}
}

// ListComments returns every comment, newest first.
func (r *CommentRepository) ListComments(ctx context.Context) ([]models.Comment, error) {
	query := `
		SELECT id, source_reading_id, text, author, created_at
		FROM comments
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var (
			c         models.Comment
			readingID sql.NullString
			author    sql.NullString
		)
		if err := rows.Scan(&c.ID, &readingID, &c.Text, &author, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.SourceReadingID = readingID.String
		c.Author = author.String
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return comments, nil
}

// InsertComment stores a comment and returns it with its ID and creation time.
func (r *CommentRepository) InsertComment(ctx context.Context, in models.NewComment) (*models.Comment, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidComment)
	}
	if in.SourceReadingID == "" {
		return nil, fmt.Errorf("%w: source_reading_id is required", ErrInvalidComment)
	}

	c := models.Comment{
		ID:              uuid.New().String(),
		SourceReadingID: in.SourceReadingID,
		Text:            text,
		Author:          in.Author,
	}

	query := `
		INSERT INTO comments (id, source_reading_id, text, author)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := r.db.QueryRowContext(ctx, query, c.ID, c.SourceReadingID, c.Text, c.Author).Scan(&c.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	r.logger.Info("Comment stored",
		zap.String("comment_id", c.ID),
		zap.String("source_reading_id", c.SourceReadingID),
	)
	return &c, nil
}
