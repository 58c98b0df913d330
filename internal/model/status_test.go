package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Predicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    Status
		editable  bool
		sendable  bool
		deletable bool
		terminal  bool
	}{
		{StatusDraft, true, true, true, false},
		{StatusScheduled, true, true, false, false},
		{StatusProcessing, false, false, false, false},
		{StatusCompleted, false, false, false, true},
		{StatusFailed, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.editable, tt.status.CanBeEdited(), "CanBeEdited")
			assert.Equal(t, tt.sendable, tt.status.CanBeSent(), "CanBeSent")
			assert.Equal(t, tt.deletable, tt.status.CanBeDeleted(), "CanBeDeleted")
			assert.Equal(t, tt.terminal, tt.status.IsTerminal(), "IsTerminal")
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	t.Parallel()

	for _, s := range Statuses() {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("sending").Valid())
	assert.False(t, Status("").Valid())
}

func TestCampaign_Progress(t *testing.T) {
	t.Parallel()

	c := &Campaign{TotalRecipients: 0, SentCount: 0, FailedCount: 0}
	assert.Equal(t, 0, c.ProgressPercentage())

	c = &Campaign{TotalRecipients: 4, SentCount: 1, FailedCount: 2}
	assert.Equal(t, 25, c.ProgressPercentage())
	assert.Equal(t, 1, c.PendingCount())
}
