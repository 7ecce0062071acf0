package testutil_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/testutil"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func TestMemoryDB_FindOne(t *testing.T) {
	db := testutil.NewMemoryDB()
	db.Seed(patent.Patent{PatentNumber: "100", ApplicationNumber: "A1"})
	db.Seed(patent.Patent{PatentNumber: "200", ApplicationNumber: "A1"})
	ctx := context.Background()

	p, err := db.Patents().FindOne(ctx, patent.Lookup{PatentNumber: "200"})
	require.NoError(t, err)
	assert.Equal(t, "A1", p.ApplicationNumber)

	_, err = db.Patents().FindOne(ctx, patent.Lookup{ApplicationNumber: "A1"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	_, err = db.Patents().FindOne(ctx, patent.Lookup{PatentNumber: "300"})
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryDB_CreateRejectsDuplicateNumber(t *testing.T) {
	db := testutil.NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Patents().Create(ctx, &patent.Patent{PatentNumber: "100"}))

	err := db.Patents().Create(ctx, &patent.Patent{PatentNumber: "100"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
	assert.Len(t, db.AllPatents(), 1)
}

func TestMemoryDB_WithinTxRollsBack(t *testing.T) {
	db := testutil.NewMemoryDB()
	ctx := context.Background()
	boom := stderrors.New("boom")

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, db.Patents().Create(ctx, &patent.Patent{PatentNumber: "1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, db.AllPatents())

	require.NoError(t, db.WithinTx(ctx, func(ctx context.Context) error {
		return db.Patents().Create(ctx, &patent.Patent{PatentNumber: "2"})
	}))
	assert.Len(t, db.AllPatents(), 1)
}

func TestMemoryDB_DeleteCascadesEvents(t *testing.T) {
	db := testutil.NewMemoryDB()
	old := db.Seed(patent.Patent{PatentNumber: "1", IssueDate: testutil.Day("2000-01-01")})
	kept := db.Seed(patent.Patent{PatentNumber: "2", IssueDate: testutil.Day("2015-01-01")})
	db.SeedEvent(patent.FeeEvent{PatentID: old, MaintenanceCode: "M1551"})
	db.SeedEvent(patent.FeeEvent{PatentID: kept, MaintenanceCode: "M1551"})

	n, err := db.Patents().DeleteIssuedBefore(context.Background(), testutil.Day("2010-01-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	events := db.AllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, kept, events[0].PatentID)
}

func TestMemoryBackend_ReadMissing(t *testing.T) {
	b := testutil.NewMemoryBackend()
	_, err := b.Read(context.Background(), "index/paid")
	assert.True(t, errors.IsCode(err, errors.ErrCodeArtifactNotFound))
}
