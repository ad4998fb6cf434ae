package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmerRastgar/studio-sub002/internal/types"
)

func TestPayload_String(t *testing.T) {
	p := Payload{
		"controlId": "c-1",
		"count":     3,
		"empty":     "",
	}

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"present", "controlId", "c-1", false},
		{"missing", "evidenceId", "", true},
		{"wrong type", "count", "", true},
		{"empty string", "empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.String(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.EVENT_PAYLOAD_INVALID, types.CodeOf(err))
				assert.False(t, types.IsRetryable(err), "malformed payloads must not be retried")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPayload_OptionalString(t *testing.T) {
	p := Payload{"role": "uploader"}
	assert.Equal(t, "uploader", p.OptionalString("role"))
	assert.Equal(t, "", p.OptionalString("absent"))
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	e := Event{
		Type:      "link_evidence_to_control",
		ID:        "evt-42",
		Timestamp: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		Payload:   Payload{"evidenceId": "e-1", "controlId": "c-1"},
	}

	data, err := e.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.ID, got.ID)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))

	id, err := got.Payload.String("evidenceId")
	require.NoError(t, err)
	assert.Equal(t, "e-1", id)
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, types.EVENT_PAYLOAD_INVALID, types.CodeOf(err))
}

func TestNew_AssignsIDAndTimestamp(t *testing.T) {
	e := New("user_created", Payload{"userId": "u-1"})
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "user_created", e.Type)
}
