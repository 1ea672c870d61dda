package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/document-archive-api/internal/models"
)

type checksumLookup interface {
	GetByChecksum(ctx context.Context, checksum string) (*models.Document, error)
}

// DedupGate decides whether content is already archived by an active document.
type DedupGate struct {
	repo checksumLookup
}

// NewDedupGate constructs the gate.
func NewDedupGate(repo checksumLookup) *DedupGate {
	return &DedupGate{repo: repo}
}

// CheckDuplicate returns the active document holding checksum, or nil when there is none.
func (g *DedupGate) CheckDuplicate(ctx context.Context, checksum string) (*models.Document, error) {
	doc, err := g.repo.GetByChecksum(ctx, checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup checksum: %w", err)
	}
	return doc, nil
}
