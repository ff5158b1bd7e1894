package events_test

import (
	"testing"

	"cairn.build/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "INFO", events.SeverityInfo.String())
	assert.Equal(t, "ERROR", events.SeverityError.String())
	assert.Equal(t, "UNKNOWN", events.Severity(17).String())
}

func TestHasErrors(t *testing.T) {
	assert.False(t, events.HasErrors(nil))
	assert.False(t, events.HasErrors([]events.Event{events.Infof("all good")}))
	assert.True(t, events.HasErrors([]events.Event{
		events.Infof("step %d", 1),
		events.Errorf("step %d failed", 2),
	}))
}

func TestCapturingSink(t *testing.T) {
	sink := &events.CapturingSink{}
	sink.Replay([]events.Event{events.Infof("one")})
	sink.Replay([]events.Event{events.Errorf("two")})
	assert.Equal(t, []events.Event{
		events.Infof("one"),
		events.Errorf("two"),
	}, sink.Events)
}
