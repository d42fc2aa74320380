package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
)

// AuditLogFilter narrows audit trail searches.
type AuditLogFilter struct {
	Actions       []models.AuditAction
	ActorID       *uint
	ActorType     string
	SubjectID     *uint
	SubjectType   string
	AssignmentID  *uint
	StudentID     *uint
	ContextSearch string
	StartDate     *time.Time
	EndDate       *time.Time
	Page          int
	PageSize      int
}

// AuditLogRepository appends and searches audit entries. Immutability is
// structural: the interface exposes no update or delete.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	Search(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository instantiates the repository.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepository) Search(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})

	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}

	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}

	if filter.ActorType != "" {
		query = query.Where("actor_type = ?", filter.ActorType)
	}

	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}

	if filter.SubjectType != "" {
		query = query.Where("subject_type = ?", filter.SubjectType)
	}

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.ContextSearch != "" {
		query = query.Where("context LIKE ?", "%"+filter.ContextSearch+"%")
	}

	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}

	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entries []models.AuditLogEntry
	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
