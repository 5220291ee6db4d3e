package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/mooddesk/escalation-bot/internal/models"
)

// CaseArchiver writes escalated case snapshots to an Archive
type CaseArchiver struct {
	archive Archive
}

func NewCaseArchiver(archive Archive) *CaseArchiver {
	return &CaseArchiver{archive: archive}
}

// CaseBlobName is cases/<business>/<case>.json
func CaseBlobName(businessID, caseID string) string {
	return path.Join("cases", businessID, caseID+".json")
}

// ArchiveCase stores the current snapshot of c, replacing earlier ones
func (a *CaseArchiver) ArchiveCase(ctx context.Context, c *models.EscalatedCase) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal case %s: %w", c.ID, err)
	}

	return a.archive.Store(ctx, CaseBlobName(c.BusinessID, c.ID), data)
}

// LoadCase reads an archived snapshot
func (a *CaseArchiver) LoadCase(ctx context.Context, businessID, caseID string) (*models.EscalatedCase, error) {
	data, err := a.archive.Retrieve(ctx, CaseBlobName(businessID, caseID))
	if err != nil {
		return nil, err
	}

	var c models.EscalatedCase
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case %s: %w", caseID, err)
	}
	return &c, nil
}

// ListCaseIDs returns the ids of all archived cases for a business
func (a *CaseArchiver) ListCaseIDs(ctx context.Context, businessID string) ([]string, error) {
	names, err := a.archive.List(ctx, path.Join("cases", businessID)+"/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(path.Base(name), ".json"))
	}
	return ids, nil
}
