package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDocumentRepository implements settlement.DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// Ensure GormDocumentRepository implements the interface
var _ settlement.DocumentRepository = (*GormDocumentRepository)(nil)

// Save creates or replaces a document together with its items and transactions
func (r *GormDocumentRepository) Save(ctx context.Context, doc *settlement.Document) error {
	model := models.DocumentModelFromDomain(doc)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items", "Transactions").Save(model).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", model.ID).Delete(&models.DocumentItemModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", model.ID).Delete(&models.DocumentTransactionModel{}).Error; err != nil {
			return err
		}
		if len(model.Items) > 0 {
			if err := tx.Create(&model.Items).Error; err != nil {
				return err
			}
		}
		if len(model.Transactions) > 0 {
			if err := tx.Create(&model.Transactions).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID loads a document with its items and transactions
func (r *GormDocumentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*settlement.Document, error) {
	var model models.DocumentModel
	if err := r.withDetails(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Count returns how many documents match the query
func (r *GormDocumentRepository) Count(ctx context.Context, query settlement.DocumentQuery) (int64, error) {
	var count int64
	q, err := r.scoped(r.db.WithContext(ctx).Model(&models.DocumentModel{}), query)
	if err != nil {
		return 0, err
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindPage returns up to limit documents after the cursor, ordered by (document_date, id)
func (r *GormDocumentRepository) FindPage(
	ctx context.Context,
	query settlement.DocumentQuery,
	after *settlement.PageCursor,
	limit int,
) ([]*settlement.Document, error) {
	q, err := r.scoped(r.withDetails(r.db.WithContext(ctx)), query)
	if err != nil {
		return nil, err
	}
	if after != nil {
		q = q.Where("(document_date > ? OR (document_date = ? AND id > ?))",
			after.DocumentDate, after.DocumentDate, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var docModels []models.DocumentModel
	if err := q.Order("document_date ASC, id ASC").Find(&docModels).Error; err != nil {
		return nil, err
	}
	return toDomainDocuments(docModels), nil
}

// FindHeaders returns the matching documents without items or transactions
func (r *GormDocumentRepository) FindHeaders(ctx context.Context, query settlement.DocumentQuery) ([]*settlement.Document, error) {
	q, err := r.scoped(r.db.WithContext(ctx), query)
	if err != nil {
		return nil, err
	}
	var docModels []models.DocumentModel
	if err := q.Order("document_date ASC, id ASC").Find(&docModels).Error; err != nil {
		return nil, err
	}
	return toDomainDocuments(docModels), nil
}

// ClaimExportMarker stamps the marker if the document still has the loaded version.
// Unless re-exporting, the marker must also still be unset.
func (r *GormDocumentRepository) ClaimExportMarker(ctx context.Context, claim settlement.MarkerClaim) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND id = ? AND type_code = ? AND version = ?",
			claim.TenantID, claim.DocumentID, claim.TypeCode, claim.ExpectedVersion)
	if !claim.Reexport {
		q = q.Where("exported_at IS NULL")
	}

	result := q.Updates(map[string]any{
		"exported_at":      claim.ExportedAt,
		"exported_by":      claim.ExportedBy,
		"export_type_code": string(claim.TypeCode),
		"export_task_id":   claim.TaskID,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       time.Now(),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseExportMarkers clears the markers the task stamped on the given documents.
// Markers stamped by any other task are left alone.
func (r *GormDocumentRepository) ReleaseExportMarkers(
	ctx context.Context,
	tenantID, taskID uuid.UUID,
	documentIDs []uuid.UUID,
) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND export_task_id = ? AND id IN ?", tenantID, taskID, documentIDs).
		Updates(clearedMarker())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReleaseTaskMarkers clears every marker the task stamped. Used when a task is
// abandoned and the claimed document ids are no longer known.
func (r *GormDocumentRepository) ReleaseTaskMarkers(ctx context.Context, tenantID, taskID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND export_task_id = ?", tenantID, taskID).
		Updates(clearedMarker())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ClearExportMarker clears one marker and records the reversal in the same transaction
func (r *GormDocumentRepository) ClearExportMarker(ctx context.Context, reversal settlement.MarkerReversal) (bool, error) {
	cleared := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.DocumentModel
		if err := tx.Select("id", "exported_at", "export_task_id").
			Where("tenant_id = ? AND id = ?", reversal.TenantID, reversal.DocumentID).
			First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		result := tx.Model(&models.DocumentModel{}).
			Where("tenant_id = ? AND id = ? AND exported_at IS NOT NULL", reversal.TenantID, reversal.DocumentID).
			Updates(clearedMarker())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		reversedAt := reversal.ReversedAt
		if reversedAt.IsZero() {
			reversedAt = time.Now()
		}
		audit := &models.MarkerReversalModel{
			ID:                 uuid.New(),
			TenantID:           reversal.TenantID,
			DocumentID:         reversal.DocumentID,
			TypeCode:           string(reversal.TypeCode),
			PreviousExportedAt: current.ExportedAt,
			PreviousTaskID:     current.ExportTaskID,
			Reason:             reversal.Reason,
			ReversedBy:         reversal.ReversedBy,
			ReversedAt:         reversedAt,
		}
		if err := tx.Create(audit).Error; err != nil {
			return fmt.Errorf("record marker reversal: %w", err)
		}
		cleared = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return cleared, nil
}

// scoped restricts a query to the tenant, type and conditions of the document query
func (r *GormDocumentRepository) scoped(db *gorm.DB, query settlement.DocumentQuery) (*gorm.DB, error) {
	q := db.Where("tenant_id = ? AND type_code = ?", query.TenantID, query.TypeCode)
	for _, cond := range query.Conditions {
		var err error
		if q, err = applyCondition(q, cond); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// withDetails preloads items and transactions in their recorded order
func (r *GormDocumentRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") })
}

// applyCondition translates one parsed condition into a WHERE clause.
// Column names come from the field whitelist, never from the caller.
func applyCondition(q *gorm.DB, cond settlement.Condition) (*gorm.DB, error) {
	column := cond.Field.Column
	if _, ok := settlement.LookupField(cond.Field.Name); !ok || column == "" {
		return nil, fmt.Errorf("field %q cannot be filtered", cond.Field.Name)
	}

	switch cond.Op {
	case settlement.OpEqual:
		return q.Where(column+" = ?", cond.Value), nil
	case settlement.OpIsNull:
		return q.Where(column + " IS NULL"), nil
	case settlement.OpNotNull:
		return q.Where(column + " IS NOT NULL"), nil
	case settlement.OpBetween:
		return q.Where(column+" >= ? AND "+column+" <= ?", cond.Lower, cond.Upper), nil
	case settlement.OpGTE:
		return q.Where(column+" >= ?", cond.Lower), nil
	case settlement.OpLTE:
		return q.Where(column+" <= ?", cond.Upper), nil
	default:
		return nil, fmt.Errorf("unsupported operator %q on field %q", cond.Op, cond.Field.Name)
	}
}

func clearedMarker() map[string]any {
	return map[string]any{
		"exported_at":      nil,
		"exported_by":      nil,
		"export_type_code": "",
		"export_task_id":   nil,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       time.Now(),
	}
}

func toDomainDocuments(docModels []models.DocumentModel) []*settlement.Document {
	docs := make([]*settlement.Document, len(docModels))
	for i := range docModels {
		docs[i] = docModels[i].ToDomain()
	}
	return docs
}
