package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition_Exhaustive(t *testing.T) {
	states := []State{StateUnresolved, StateBootstrapping, StateLoaded, StateIDRegistered, StateKeysRegistered, StateReady, StateFailed}
	events := []Event{EventFound, EventNotFound, EventBootstrapped, EventIDRegistered, EventKeysRegistered, EventKeysChecked, EventFail}

	valid := map[State]map[Event]State{
		StateUnresolved:     {EventFound: StateLoaded, EventNotFound: StateBootstrapping, EventFail: StateFailed},
		StateBootstrapping:  {EventBootstrapped: StateLoaded, EventFail: StateFailed},
		StateLoaded:         {EventIDRegistered: StateIDRegistered, EventFail: StateFailed},
		StateIDRegistered:   {EventKeysRegistered: StateKeysRegistered, EventFail: StateFailed},
		StateKeysRegistered: {EventKeysChecked: StateReady, EventFail: StateFailed},
	}

	for _, s := range states {
		for _, ev := range events {
			next, err := Transition(s, ev)
			expected, ok := valid[s][ev]
			if ok {
				assert.NoError(t, err, "%s on %s", s, ev)
				assert.Equal(t, expected, next, "%s on %s", s, ev)
			} else {
				assert.Error(t, err, "%s on %s", s, ev)
				assert.Equal(t, s, next, "%s on %s", s, ev)
			}
		}
	}

	assert.True(t, StateReady.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateLoaded.Terminal())
}
