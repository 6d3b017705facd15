package service

import (
	"context"
	"encoding/json"
	"log"

	"adminauth/internal/model"
	"adminauth/internal/repository"
	"adminauth/pkg/pagination"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditEntry describes one security event. Details must never contain credentials,
// tokens or request bodies.
type AuditEntry struct {
	ActorID    string
	Action     string
	EntityID   string
	EntityName string
	Details    map[string]any
}

type AuditService interface {
	Record(ctx context.Context, entry AuditEntry)
	GetAuditLogs(ctx context.Context, filter repository.AuditFilter, p pagination.Params) (pagination.Page[AuditLogResponse], error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// Record appends to the audit trail. A failed write is logged and otherwise
// ignored: auditing never fails the operation it describes.
func (s *auditService) Record(ctx context.Context, entry AuditEntry) {
	row := &model.AuditLog{
		Action:     entry.Action,
		EntityID:   entry.EntityID,
		EntityName: entry.EntityName,
	}
	if entry.ActorID != "" {
		if parsed, err := uuid.Parse(entry.ActorID); err == nil {
			row.UserID = &parsed
		}
	}
	if len(entry.Details) > 0 {
		if b, err := json.Marshal(entry.Details); err == nil {
			row.Details = string(b)
		}
	}
	if err := s.repo.Log(ctx, row); err != nil {
		logWarn("audit: failed to record %s: %v", entry.Action, err)
	}
}

// GetAuditLogs retrieves strictly paginated records with Users pre-loaded joining details
func (s *auditService) GetAuditLogs(ctx context.Context, filter repository.AuditFilter, p pagination.Params) (pagination.Page[AuditLogResponse], error) {
	logs, total, err := s.repo.List(ctx, filter, p.Page, p.Limit)
	if err != nil {
		return pagination.Page[AuditLogResponse]{}, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return pagination.NewPage(res, total, p), nil
}

func logWarn(format string, args ...any) {
	log.Printf("WARNING: "+format, args...)
}
