package calls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusAcknowledged, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusAcknowledged, StatusCompleted, true},
		{StatusAcknowledged, StatusCancelled, true},
		{StatusAcknowledged, StatusAcknowledged, false},
		{StatusAcknowledged, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusAcknowledged, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusAcknowledged.Terminal())
	assert.False(t, Status("ringing").Valid())
}

func TestCallMetrics(t *testing.T) {
	called := time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)
	ack := called.Add(30 * time.Second)
	done := called.Add(90 * time.Second)

	m := Call{CalledAt: called, AcknowledgedAt: &ack, CompletedAt: &done}.Metrics()
	require.NotNil(t, m.ResponseSeconds)
	require.NotNil(t, m.TotalSeconds)
	assert.Equal(t, 30.0, *m.ResponseSeconds)
	assert.Equal(t, 90.0, *m.TotalSeconds)

	// completed straight from pending has no response time
	m = Call{CalledAt: called, CompletedAt: &done}.Metrics()
	assert.Nil(t, m.ResponseSeconds)
	assert.Equal(t, 90.0, *m.TotalSeconds)
}

func TestCallCloneIsDeep(t *testing.T) {
	ack := time.Now()
	c := Call{Metadata: map[string]any{"urgency": "high"}, AcknowledgedAt: &ack}
	cp := c.Clone()

	cp.Metadata["urgency"] = "low"
	*cp.AcknowledgedAt = ack.Add(time.Hour)

	assert.Equal(t, "high", c.Metadata["urgency"])
	assert.True(t, c.AcknowledgedAt.Equal(ack))
}
