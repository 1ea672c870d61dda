package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/document-archive-api/internal/models"
)

type checksumLookupStub struct {
	doc *models.Document
	err error
}

func (s checksumLookupStub) GetByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	return s.doc, s.err
}

func TestDedupGateCheckDuplicate(t *testing.T) {
	existing := &models.Document{ID: 9, Checksum: "abc"}

	doc, err := NewDedupGate(checksumLookupStub{doc: existing}).CheckDuplicate(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, existing, doc)

	doc, err = NewDedupGate(checksumLookupStub{err: sql.ErrNoRows}).CheckDuplicate(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = NewDedupGate(checksumLookupStub{err: errors.New("timeout")}).CheckDuplicate(context.Background(), "abc")
	assert.Error(t, err)
}
