package job

import (
	"context"
	"testing"
	"time"

	"otakumori/internal/service"
	"otakumori/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceAuditFindsDriftWithoutRepairing(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	clock := testutil.Clock(t, time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC))
	ledger := service.NewLedgerService(db, cfg, clock)
	ctx := context.Background()

	clean := testutil.CreateUser(t, db, "clean", 0)
	_, err := ledger.Credit(ctx, service.Posting{UserID: clean.ID, Amount: 30, Reason: "TEST", IdempotencyKey: "k1"})
	require.NoError(t, err)

	drifted := testutil.CreateUser(t, db, "drifted", 15)

	audit := NewBalanceAuditJob(db, ledger, cfg)
	audit.batchSize = 1

	assert.Equal(t, 1, audit.RunOnce(ctx))
	assert.Equal(t, int64(15), testutil.Balance(t, db, drifted.ID))
	assert.Equal(t, int64(30), testutil.Balance(t, db, clean.ID))
}
