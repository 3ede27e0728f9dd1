package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

func openRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_SaveAndRead(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	entries := []*sagalog.SagaLog{
		{SagaID: "s1", Status: sagalog.StatusStarted, Payload: `{"payment_id":"p1"}`, ErrorMessages: "[]", UpdatedAt: base},
		{SagaID: "s1", Status: sagalog.StatusStepDone, CurrentStep: "gateway_refund", ErrorMessages: "[]", UpdatedAt: base.Add(time.Second)},
		{SagaID: "s1", Status: sagalog.StatusInconsistent, CurrentStep: "cancel_order", ErrorMessages: `["boom"]`, UpdatedAt: base.Add(2 * time.Second)},
		{SagaID: "s2", Status: sagalog.StatusStarted, ErrorMessages: "[]", UpdatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Save(ctx, e))
	}

	latest, err := repo.GetLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusInconsistent, latest.Status)
	assert.Equal(t, "cancel_order", latest.CurrentStep)
	assert.True(t, latest.UpdatedAt.Equal(base.Add(2*time.Second)))

	all, err := repo.ListBySaga(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, `{"payment_id":"p1"}`, all[0].Payload)
	assert.Empty(t, all[1].Payload)
}

func TestRepository_GetLatestMissing(t *testing.T) {
	repo := openRepo(t)
	_, err := repo.GetLatest(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRepository_ListByStatus(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	save := func(id string, st sagalog.Status, step string, offset time.Duration) {
		require.NoError(t, repo.Save(ctx, &sagalog.SagaLog{
			SagaID: id, Status: st, CurrentStep: step, ErrorMessages: "[]", UpdatedAt: base.Add(offset),
		}))
	}
	save("a", sagalog.StatusStarted, "", 0)
	save("a", sagalog.StatusInconsistent, "cancel_order", time.Second)
	save("b", sagalog.StatusStarted, "", 2*time.Second)
	save("b", sagalog.StatusInconsistent, "commit_payment", 3*time.Second)
	save("c", sagalog.StatusInconsistent, "cancel_order", 4*time.Second)
	// c was resumed afterwards, so it is no longer inconsistent.
	save("c", sagalog.StatusCompleted, "cancel_order", 5*time.Second)

	got, err := repo.ListByStatus(ctx, sagalog.StatusInconsistent, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].SagaID)
	assert.Equal(t, "commit_payment", got[0].CurrentStep)
	assert.Equal(t, "a", got[1].SagaID)

	got, err = repo.ListByStatus(ctx, sagalog.StatusInconsistent, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].SagaID)

	got, err = repo.ListByStatus(ctx, sagalog.StatusFailed, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
