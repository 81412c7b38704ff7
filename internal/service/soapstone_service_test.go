package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"otakumori/internal/model"
	"otakumori/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSoapstones(t *testing.T) (*gorm.DB, *SoapstoneService) {
	t.Helper()
	db := testutil.NewDB(t)
	return db, NewSoapstoneService(db, testutil.Config())
}

func countHiddenEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("event_type = ?", model.EventSoapstoneHidden).Count(&n).Error)
	return n
}

func TestCreateSoapstoneValidation(t *testing.T) {
	db, soapstones := newSoapstones(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "writer", 0)

	_, err := soapstones.Create(ctx, user.ID, "   ")
	require.ErrorIs(t, err, ErrValidation)

	_, err = soapstones.Create(ctx, user.ID, strings.Repeat("花", MaxSoapstoneLength+1))
	require.ErrorIs(t, err, ErrValidation)

	msg, err := soapstones.Create(ctx, user.ID, "  "+strings.Repeat("花", MaxSoapstoneLength)+"  ")
	require.NoError(t, err)
	assert.Equal(t, model.SoapstoneStatusVisible, msg.Status)
	assert.NotEmpty(t, msg.PublicID)

	visible, err := soapstones.ListVisible(ctx, 10)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, msg.PublicID, visible[0].PublicID)
}

func TestReportHidesAtThreshold(t *testing.T) {
	db, soapstones := newSoapstones(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "reported", 0)

	msg, err := soapstones.Create(ctx, user.ID, "try finger but hole")
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.SoapstoneMessage{}).Where("id = ?", msg.ID).Update("reports", 4).Error)

	result, err := soapstones.Report(ctx, msg.PublicID)
	require.NoError(t, err)
	assert.True(t, result.Hidden)
	assert.Equal(t, 5, result.Message.Reports)
	assert.Equal(t, model.SoapstoneStatusHidden, result.Message.Status)
	assert.Equal(t, int64(1), countHiddenEvents(t, db))

	visible, err := soapstones.ListVisible(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestReportBelowThresholdStaysVisible(t *testing.T) {
	db, soapstones := newSoapstones(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "mild", 0)

	msg, err := soapstones.Create(ctx, user.ID, "praise the sun")
	require.NoError(t, err)

	result, err := soapstones.Report(ctx, msg.PublicID)
	require.NoError(t, err)
	assert.False(t, result.Hidden)
	assert.Equal(t, 1, result.Message.Reports)
	assert.Equal(t, model.SoapstoneStatusVisible, result.Message.Status)
	assert.Zero(t, countHiddenEvents(t, db))
}

func TestReportAlreadyHiddenDoesNotRetrigger(t *testing.T) {
	db, soapstones := newSoapstones(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "hidden", 0)

	msg, err := soapstones.Create(ctx, user.ID, "be wary of liar")
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.SoapstoneMessage{}).Where("id = ?", msg.ID).
		Updates(map[string]interface{}{"reports": 10, "status": model.SoapstoneStatusHidden}).Error)

	result, err := soapstones.Report(ctx, msg.PublicID)
	require.NoError(t, err)
	assert.False(t, result.Hidden)
	assert.Equal(t, 11, result.Message.Reports)
	assert.Equal(t, model.SoapstoneStatusHidden, result.Message.Status)
	assert.Zero(t, countHiddenEvents(t, db))
}

func TestAppraiseAndMissingMessage(t *testing.T) {
	db, soapstones := newSoapstones(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "appraised", 0)

	msg, err := soapstones.Create(ctx, user.ID, "visions of petals")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		msg, err = soapstones.Appraise(ctx, msg.PublicID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, msg.Appraises)

	_, err = soapstones.Appraise(ctx, "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = soapstones.Report(ctx, "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentReportsKeepEveryIncrement(t *testing.T) {
	db := testutil.NewFileDB(t, 8)
	soapstones := NewSoapstoneService(db, testutil.Config())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "crowd", 0)

	msg, err := soapstones.Create(ctx, user.ID, "praise the sun")
	require.NoError(t, err)

	const reporters = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		hidden int
		errs   []error
	)
	for i := 0; i < reporters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := soapstones.Report(ctx, msg.PublicID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if result.Hidden {
				hidden++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, hidden)
	assert.Equal(t, int64(1), countHiddenEvents(t, db))

	var stored model.SoapstoneMessage
	require.NoError(t, db.Where("public_id = ?", msg.PublicID).First(&stored).Error)
	assert.Equal(t, reporters, stored.Reports)
	assert.Equal(t, model.SoapstoneStatusHidden, stored.Status)
}
