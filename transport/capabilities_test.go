package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_InProcessOnly(t *testing.T) {
	tests := []struct {
		name     string
		caps     Capabilities
		wantBool bool
	}{
		{
			name:     "cross-process bridge",
			caps:     Capabilities{CrossProcess: true},
			wantBool: false,
		},
		{
			name:     "in-process bridge",
			caps:     Capabilities{CrossProcess: false},
			wantBool: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBool, tt.caps.InProcessOnly())
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	t.Run("channel", func(t *testing.T) {
		assert.Equal(t, "channel", ChannelCapabilities.Name)
		assert.False(t, ChannelCapabilities.CrossProcess)
		assert.True(t, ChannelCapabilities.SupportsOrdering)
		assert.True(t, ChannelCapabilities.SupportsAck)
	})

	t.Run("nats", func(t *testing.T) {
		assert.Equal(t, "nats", NATSCapabilities.Name)
		assert.True(t, NATSCapabilities.CrossProcess)
		assert.True(t, NATSCapabilities.SupportsOrdering)
		assert.True(t, NATSCapabilities.SupportsTracing)
	})
}
