package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusAddressReady, true},
		{StatusAddressReady, StatusOrderNumberAllocated, true},
		{StatusOrderNumberAllocated, StatusPaymentPending, true},
		{StatusPaymentPending, StatusPaymentSucceeded, true},
		{StatusPaymentPending, StatusPaymentFailed, true},
		{StatusPaymentSucceeded, StatusPersisted, true},
		{StatusPaymentFailed, StatusPersisted, true},

		{StatusIdle, StatusPaymentPending, false},
		{StatusAddressReady, StatusPaymentPending, false},
		{StatusPaymentSucceeded, StatusPaymentFailed, false},
		{StatusPaymentFailed, StatusPaymentSucceeded, false},
		{StatusPersisted, StatusIdle, false},
		{StatusPersisted, StatusPersisted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusPersisted.IsTerminal())
	assert.False(t, StatusPaymentPending.IsTerminal())
}

func TestSignature(t *testing.T) {
	sig := Sign("s3cret", "order_1", "pay_1")

	assert.True(t, VerifySignature("s3cret", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("s3cret", "order_1", "pay_2", sig))
	assert.False(t, VerifySignature("other", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("", "order_1", "pay_1", Sign("", "order_1", "pay_1")))
	assert.False(t, VerifySignature("s3cret", "order_1", "pay_1", ""))
}
