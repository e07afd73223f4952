package metrics

import (
	"context"
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_AddPublishesExpvar(t *testing.T) {
	before := EventsRaised.Value()
	EventsRaised.Add(context.Background(), 3)
	assert.Equal(t, before+3, EventsRaised.Value())

	v := expvar.Get("events_raised")
	if assert.NotNil(t, v) {
		assert.Equal(t, EventsRaised.v.String(), v.String())
	}
}
