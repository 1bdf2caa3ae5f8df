package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

// Repository persists the in-app inbox. Every query is scoped to one recipient.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	Page(ctx context.Context, q inboxQuery) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (markOutcome, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type inboxQuery struct {
	RecipientID uuid.UUID
	Kind        enums.NotificationKind
	UnreadOnly  bool
	Limit       int
	After       *pagination.Cursor
}

type markOutcome int

const (
	markMissing markOutcome = iota
	markAlreadyRead
	markUpdated
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) inbox(ctx context.Context, recipientID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", recipientID)
}

func (r *gormRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// Page returns newest first and the cursor of the last row when more exist.
func (r *gormRepository) Page(ctx context.Context, q inboxQuery) ([]models.Notification, *pagination.Cursor, error) {
	query := r.inbox(ctx, q.RecipientID)
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if q.After != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.After.CreatedAt, q.After.CreatedAt, q.After.ID)
	}

	var rows []models.Notification
	err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(q.Limit)).Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.inbox(ctx, recipientID).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

func (r *gormRepository) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (markOutcome, error) {
	var row models.Notification
	err := r.inbox(ctx, recipientID).Where("id = ?", notificationID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return markMissing, nil
	}
	if err != nil {
		return markMissing, err
	}
	if row.ReadAt != nil {
		return markAlreadyRead, nil
	}

	res := r.inbox(ctx, recipientID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", at)
	if res.Error != nil {
		return markMissing, res.Error
	}
	if res.RowsAffected == 0 {
		// marked by a concurrent request in between
		return markAlreadyRead, nil
	}
	return markUpdated, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	res := r.inbox(ctx, recipientID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadOlderThan purges read rows created before cutoff; unread rows stay
// regardless of age.
func (r *gormRepository) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
