package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregateCountsOnlyApprovedForPayment(t *testing.T) {
	items := []PaymentRequest{
		{Status: PaymentStatusApproved, FaepaPaid: true, FaepaPaymentNotified: true},
		{Status: PaymentStatusApproved, FaepaPaid: true},
		{Status: PaymentStatusRejected, FaepaPaid: true},
		{Status: PaymentStatusPending},
	}
	agg := Aggregate(items)
	require.Equal(t, BatchAggregate{Total: 4, Approved: 2, Rejected: 1, Pending: 1, PaidCount: 2, NotifiedCount: 1}, agg)
	require.False(t, agg.Forwardable())
	require.True(t, agg.AutoNotifyEligible())
}

func TestAggregateEligibility(t *testing.T) {
	allRejected := Aggregate([]PaymentRequest{{Status: PaymentStatusRejected}})
	require.False(t, allRejected.Forwardable())
	require.False(t, allRejected.AutoNotifyEligible())

	unpaid := Aggregate([]PaymentRequest{{Status: PaymentStatusApproved}, {Status: PaymentStatusApproved, FaepaPaid: true}})
	require.True(t, unpaid.Forwardable())
	require.False(t, unpaid.AutoNotifyEligible())

	done := Aggregate([]PaymentRequest{{Status: PaymentStatusApproved, FaepaPaid: true, FaepaPaymentNotified: true}})
	require.False(t, done.AutoNotifyEligible())
}

func TestSummarizeUsesEarliestCreatedAt(t *testing.T) {
	now := time.Now()
	summary := Summarize([]PaymentRequest{
		{BatchID: "b-1", Course: "Medicina", CreatedAt: now, Status: PaymentStatusApproved},
		{BatchID: "b-1", Course: "Medicina", CreatedAt: now.Add(-time.Minute), Status: PaymentStatusPending},
	})
	require.Equal(t, "b-1", summary.BatchID)
	require.Equal(t, now.Add(-time.Minute), summary.CreatedAt)
	require.Equal(t, 2, summary.Total)
}

func TestDirectorKeyLegacyForm(t *testing.T) {
	key := NewDirectorKey("  Dra. Maria Silva ", "MEDICINA ")
	require.Equal(t, "dra. maria silva|medicina", key.String())

	parsed, ok := ParseDirectorKey("DRA. MARIA SILVA|Medicina")
	require.True(t, ok)
	require.Equal(t, key, parsed)

	_, ok = ParseDirectorKey("no-separator")
	require.False(t, ok)
	_, ok = ParseDirectorKey(" |medicina")
	require.False(t, ok)
}

func TestSnapshotScan(t *testing.T) {
	amount := "1500.00"
	snap := PaymentSnapshot{Version: SnapshotVersion, Amount: &amount}
	raw, err := snap.Value()
	require.NoError(t, err)

	var scanned PaymentSnapshot
	require.NoError(t, scanned.Scan(raw))
	require.Equal(t, "1500.00", *scanned.Amount)
	require.Nil(t, scanned.Method)
	require.Len(t, scanned.Rows(), 5)
}
