package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransaction_IsTerminal(t *testing.T) {
	cases := []struct {
		status   TransactionStatus
		terminal bool
	}{
		{TransactionStatusPending, false},
		{TransactionStatusProcessing, false},
		{TransactionStatusCompleted, true},
		{TransactionStatusFailed, true},
		{TransactionStatusCancelled, true},
	}
	for _, tc := range cases {
		txn := Transaction{Status: tc.status}
		assert.Equal(t, tc.terminal, txn.IsTerminal(), "status %s", tc.status)
	}
}

func TestTransaction_IsCancellable(t *testing.T) {
	assert.True(t, (&Transaction{Status: TransactionStatusPending}).IsCancellable())
	assert.False(t, (&Transaction{Status: TransactionStatusProcessing}).IsCancellable())
	assert.False(t, (&Transaction{Status: TransactionStatusCompleted}).IsCancellable())
	assert.False(t, (&Transaction{Status: TransactionStatusFailed}).IsCancellable())
}

func TestTransaction_GrossAmount(t *testing.T) {
	txn := Transaction{Amount: 50000, SettlementFee: 250, PlatformFee: 50, TotalFees: 300}
	assert.Equal(t, int64(50300), txn.GrossAmount())
}

func TestValidNetwork(t *testing.T) {
	for _, n := range Networks() {
		assert.True(t, ValidNetwork(n))
	}
	assert.False(t, ValidNetwork("RIPPLE"))
	assert.False(t, ValidNetwork(""))
}

func TestFeeScheduleEntry_Validate(t *testing.T) {
	valid := FeeScheduleEntry{RatePercent: decimal.NewFromFloat(0.5), MinFee: 100, MaxFee: 5000}
	assert.NoError(t, valid.Validate())

	negRate := FeeScheduleEntry{RatePercent: decimal.NewFromFloat(-1), MinFee: 0, MaxFee: 100}
	assert.Error(t, negRate.Validate())

	inverted := FeeScheduleEntry{RatePercent: decimal.NewFromFloat(1), MinFee: 500, MaxFee: 100}
	assert.Error(t, inverted.Validate())

	negMin := FeeScheduleEntry{RatePercent: decimal.NewFromFloat(1), MinFee: -1, MaxFee: 100}
	assert.Error(t, negMin.Validate())
}

func TestFeeSchedule_Entry(t *testing.T) {
	schedule := FeeSchedule{
		Stellar:  FeeScheduleEntry{RatePercent: decimal.NewFromFloat(0.1), MinFee: 10, MaxFee: 100},
		Ethereum: FeeScheduleEntry{RatePercent: decimal.NewFromFloat(1.5), MinFee: 300, MaxFee: 10000},
		Polygon:  FeeScheduleEntry{RatePercent: decimal.NewFromFloat(0.5), MinFee: 50, MaxFee: 2000},
	}
	assert.NoError(t, schedule.Validate())

	entry, err := schedule.Entry(NetworkEthereum)
	assert.NoError(t, err)
	assert.Equal(t, int64(300), entry.MinFee)

	_, err = schedule.Entry("UNKNOWN")
	assert.Error(t, err)
}
