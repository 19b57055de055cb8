package domain

import (
	"testing"
	"time"

	"github.com/smallbiznis/servicehub/internal/billingcycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	start = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	now   = time.Date(2024, time.February, 1, 10, 30, 0, 0, time.UTC)
)

func newPending(t *testing.T) Subscription {
	t.Helper()
	sub, err := New(NewParams{
		ID:           1,
		UserID:       7,
		Items:        []LineItem{{ServiceID: 11, Quantity: 2, PriceAtSubscription: PriceSnapshot{Amount: 500, Currency: "INR", BillingCycle: billingcycle.Monthly}}},
		Pricing:      Pricing{Subtotal: 1000, Taxes: 180, Total: 1180, Currency: "INR"},
		BillingCycle: billingcycle.Monthly,
		StartDate:    start,
		Address:      Address{Street: "1 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001", Country: "India"},
		Now:          start,
	})
	require.NoError(t, err)
	return sub
}

func withStatus(t *testing.T, status Status) Subscription {
	sub := newPending(t)
	sub.Status = status
	return sub
}

func TestNew_EntryState(t *testing.T) {
	sub := newPending(t)

	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, PaymentStatusPending, sub.PaymentStatus)
	require.NotNil(t, sub.Dates.NextBillingDate)
	assert.Equal(t, start.AddDate(0, 1, 0), *sub.Dates.NextBillingDate)
	assert.Equal(t, InstallationNotRequired, sub.Installation.Status)
	assert.Empty(t, sub.PaymentHistory)
}

func TestNew_OneTimeHasNoNextBillingDate(t *testing.T) {
	sub, err := New(NewParams{ID: 1, UserID: 2, BillingCycle: billingcycle.OneTime, StartDate: start, Now: start})
	require.NoError(t, err)
	assert.Nil(t, sub.Dates.NextBillingDate)
}

func TestNew_RejectsEndBeforeStart(t *testing.T) {
	end := start.AddDate(0, 0, -1)
	_, err := New(NewParams{ID: 1, UserID: 2, BillingCycle: billingcycle.Monthly, StartDate: start, EndDate: &end, Now: start})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestPause_RejectedFromPending(t *testing.T) {
	sub := newPending(t)
	before := sub.Clone()

	out, err := Pause(sub, "travel", "user:7", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Subscription{}, out)
	assert.Equal(t, before, sub)
}

func TestPause_FromActive(t *testing.T) {
	sub := withStatus(t, StatusActive)

	out, err := Pause(sub, "travel", "user:7", now)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, out.Status)
	require.NotNil(t, out.Dates.PausedDate)
	assert.Equal(t, now, *out.Dates.PausedDate)
	require.Len(t, out.Notes, 1)
	assert.Equal(t, Note{At: now, Author: "user:7", Message: "travel"}, out.Notes[0])

	assert.Equal(t, StatusActive, sub.Status)
	assert.Nil(t, sub.Dates.PausedDate)
	assert.Empty(t, sub.Notes)
}

func TestCancel_FromActiveThenRejectsSecondCancel(t *testing.T) {
	sub := withStatus(t, StatusActive)

	cancelled, err := Cancel(sub, "moving out", "user:7", now)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Dates.CancelledDate)
	assert.Equal(t, now, *cancelled.Dates.CancelledDate)
	assert.Len(t, cancelled.Notes, 1)

	again, err := Cancel(cancelled, "twice", "user:7", now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Subscription{}, again)
	assert.Len(t, cancelled.Notes, 1)
}

func TestCancel_RejectedWhenExpired(t *testing.T) {
	_, err := Cancel(withStatus(t, StatusExpired), "", "admin", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_PreservesPriorNotes(t *testing.T) {
	sub := withStatus(t, StatusActive)
	paused, err := Pause(sub, "first", "user:7", now)
	require.NoError(t, err)

	cancelled, err := Cancel(paused, "second", "user:7", now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, cancelled.Notes, 2)
	assert.Equal(t, "first", cancelled.Notes[0].Message)
	assert.Equal(t, "second", cancelled.Notes[1].Message)
}

func TestResume_ClearsPausedDate(t *testing.T) {
	paused, err := Pause(withStatus(t, StatusActive), "", "user:7", now)
	require.NoError(t, err)

	resumed, err := Resume(paused, "user:7", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusActive, resumed.Status)
	assert.Nil(t, resumed.Dates.PausedDate)
	assert.NotNil(t, paused.Dates.PausedDate)

	_, err = Resume(resumed, "user:7", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAddPayment_SuccessMarksPaidWithoutActivating(t *testing.T) {
	sub := newPending(t)

	out, err := AddPayment(sub, PaymentRecord{Amount: 1180, Method: PaymentMethodUPI, Status: PaymentRecordSuccess, TransactionID: " tx-1 "}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, PaymentStatusPaid, out.PaymentStatus)
	require.NotNil(t, out.Dates.LastPaymentDate)
	assert.Equal(t, now, *out.Dates.LastPaymentDate)
	require.Len(t, out.PaymentHistory, 1)
	assert.Equal(t, "INR", out.PaymentHistory[0].Currency)
	assert.Equal(t, "tx-1", out.PaymentHistory[0].TransactionID)
	assert.Empty(t, sub.PaymentHistory)
}

func TestAddPayment_UsesPaidAtAndKeepsOrder(t *testing.T) {
	sub := withStatus(t, StatusActive)
	paidAt := now.Add(-48 * time.Hour)

	first, err := AddPayment(sub, PaymentRecord{Amount: 100, Method: PaymentMethodCard, Status: PaymentRecordFailed}, now)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, first.PaymentStatus)
	assert.Nil(t, first.Dates.LastPaymentDate)

	second, err := AddPayment(first, PaymentRecord{Amount: 1180, Method: PaymentMethodCash, Status: PaymentRecordSuccess, PaidAt: &paidAt}, now)
	require.NoError(t, err)
	require.Len(t, second.PaymentHistory, 2)
	assert.Equal(t, PaymentRecordFailed, second.PaymentHistory[0].Status)
	assert.Equal(t, paidAt, *second.Dates.LastPaymentDate)
	assert.Len(t, first.PaymentHistory, 1)
}

func TestAddPayment_Validation(t *testing.T) {
	sub := newPending(t)

	_, err := AddPayment(sub, PaymentRecord{Amount: 10, Method: "bitcoin"}, now)
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = AddPayment(sub, PaymentRecord{Amount: -1, Method: PaymentMethodCard}, now)
	assert.ErrorIs(t, err, ErrInvalidPayment)

	_, err = AddPayment(sub, PaymentRecord{Amount: 1, Method: PaymentMethodCard, Status: "bounced"}, now)
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestOverride(t *testing.T) {
	t.Run("cancel routes through cancel", func(t *testing.T) {
		out, err := Override(withStatus(t, StatusActive), StatusCancelled, "fraud", "admin", now)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, out.Status)
		assert.NotNil(t, out.Dates.CancelledDate)
	})

	t.Run("pause from pending is rejected", func(t *testing.T) {
		_, err := Override(newPending(t), StatusPaused, "", "admin", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("active from paused resumes", func(t *testing.T) {
		paused, err := Pause(withStatus(t, StatusActive), "", "admin", now)
		require.NoError(t, err)
		out, err := Override(paused, StatusActive, "back", "admin", now)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, out.Status)
		assert.Nil(t, out.Dates.PausedDate)
	})

	t.Run("pending to active is a direct write", func(t *testing.T) {
		out, err := Override(newPending(t), StatusActive, "installed", "admin", now)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, out.Status)
		require.Len(t, out.Notes, 1)
		assert.Equal(t, "status changed from pending to active: installed", out.Notes[0].Message)
	})

	t.Run("same status and unknown status", func(t *testing.T) {
		_, err := Override(newPending(t), StatusPending, "", "admin", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = Override(newPending(t), Status("archived"), "", "admin", now)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestReschedule_RecomputesNextBillingDate(t *testing.T) {
	sub := withStatus(t, StatusActive)
	newStart := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	out, err := Reschedule(sub, ScheduleChange{StartDate: &newStart}, "admin", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), *out.Dates.NextBillingDate)

	oneTime := billingcycle.OneTime
	out, err = Reschedule(out, ScheduleChange{BillingCycle: &oneTime}, "admin", now)
	require.NoError(t, err)
	assert.Nil(t, out.Dates.NextBillingDate)
	assert.Equal(t, billingcycle.OneTime, out.BillingCycle)

	_, err = Reschedule(sub, ScheduleChange{}, "admin", now)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = Reschedule(withStatus(t, StatusCancelled), ScheduleChange{StartDate: &newStart}, "admin", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateInstallation(t *testing.T) {
	sub := newPending(t)
	_, err := UpdateInstallation(sub, InstallationChange{}, "admin", now)
	assert.ErrorIs(t, err, ErrInvalidInstallation)

	sub.Installation = Installation{IsRequired: true, Status: InstallationScheduled}
	when := now.Add(72 * time.Hour)
	inProgress := InstallationInProgress

	out, err := UpdateInstallation(sub, InstallationChange{
		ScheduledDate: &when,
		Status:        &inProgress,
		Technician:    &Technician{Name: " Ravi ", Phone: "9999999999"},
	}, "admin", now)
	require.NoError(t, err)
	assert.Equal(t, InstallationInProgress, out.Installation.Status)
	assert.Equal(t, "Ravi", out.Installation.Technician.Name)
	assert.Nil(t, sub.Installation.Technician)

	completed := InstallationCompleted
	done, err := UpdateInstallation(out, InstallationChange{Status: &completed}, "admin", now)
	require.NoError(t, err)

	scheduled := InstallationScheduled
	_, err = UpdateInstallation(done, InstallationChange{Status: &scheduled}, "admin", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAddressNormalize(t *testing.T) {
	addr, err := Address{Street: " 1 MG Road ", City: "Bengaluru", State: "KA", Pincode: "560001"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "India", addr.Country)
	assert.Equal(t, "1 MG Road", addr.Street)

	_, err = Address{Street: "x", City: "y", State: "z", Pincode: "56001"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidPincode)

	_, err = Address{City: "y", State: "z", Pincode: "560001"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.False(t, Status("archived").Valid())
	assert.True(t, PaymentStatusPartial.Valid())
}
