package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{
		StatusPendingWhatsApp, StatusConfirmed, StatusPreparing,
		StatusShipped, StatusCompleted, StatusCancelled,
	} {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}
	assert.False(t, Status("delivered").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, StatusPendingWhatsApp.Terminal())
}

func TestCheckTransition(t *testing.T) {
	happy := []struct{ from, to Status }{
		{StatusPendingWhatsApp, StatusConfirmed},
		{StatusConfirmed, StatusPreparing},
		{StatusPreparing, StatusShipped},
		{StatusShipped, StatusCompleted},
	}
	for _, tt := range happy {
		assert.NoError(t, checkTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	rejected := []struct{ from, to Status }{
		{StatusPendingWhatsApp, StatusPreparing}, // skips confirmed
		{StatusPendingWhatsApp, StatusShipped},
		{StatusConfirmed, StatusShipped}, // skips preparing
		{StatusConfirmed, StatusConfirmed},
		{StatusShipped, StatusPreparing}, // backwards
		{StatusCompleted, StatusConfirmed},
		{StatusCancelled, StatusConfirmed},
	}
	for _, tt := range rejected {
		err := checkTransition(tt.from, tt.to)
		var transition *InvalidTransitionError
		require.ErrorAs(t, err, &transition, "%s -> %s", tt.from, tt.to)
	}
}

func TestCheckCancel(t *testing.T) {
	for _, from := range []Status{StatusPendingWhatsApp, StatusConfirmed, StatusPreparing} {
		assert.NoError(t, checkCancel(from), "cancel from %s", from)
	}
	for _, from := range []Status{StatusShipped, StatusCompleted, StatusCancelled} {
		err := checkCancel(from)
		var transition *InvalidTransitionError
		require.ErrorAs(t, err, &transition, "cancel from %s", from)
	}
}

func TestInvalidTransitionError_Message(t *testing.T) {
	same := &InvalidTransitionError{From: StatusConfirmed, To: StatusConfirmed}
	assert.Equal(t, "order is already confirmed", same.Error())

	skip := &InvalidTransitionError{From: StatusPendingWhatsApp, To: StatusShipped}
	assert.Contains(t, skip.Error(), "pending_whatsapp")
	assert.Contains(t, skip.Error(), "shipped")
}

func TestCapabilities(t *testing.T) {
	assert.True(t, Allowed(RoleStaff, ActionConfirm))
	assert.True(t, Allowed(RoleStaff, ActionAdvance))
	assert.True(t, Allowed(RoleStaff, ActionCancel))
	assert.True(t, Allowed(RoleStaff, ActionMarkNotified))
	assert.True(t, Allowed(RoleStaff, ActionList))

	assert.True(t, Allowed(RoleCustomer, ActionCreate))
	assert.True(t, Allowed(RoleCustomer, ActionCancel))
	assert.False(t, Allowed(RoleCustomer, ActionConfirm))
	assert.False(t, Allowed(RoleCustomer, ActionAdvance))
	assert.False(t, Allowed(RoleCustomer, ActionMarkNotified))
	assert.False(t, Allowed(RoleCustomer, ActionList))

	assert.False(t, Allowed(Role("unknown"), ActionCancel))
}
