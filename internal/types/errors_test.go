package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudioError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *StudioError
		want string
	}{
		{
			name: "without cause",
			err:  NewError(GRAPH_QUERY_FAILED, "query failed"),
			want: "[GRAPH_QUERY_FAILED] query failed",
		},
		{
			name: "with cause",
			err:  WrapError(QUEUE_OPEN_FAILED, "cannot open queue", errors.New("disk full")),
			want: "[QUEUE_OPEN_FAILED] cannot open queue: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestStudioError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := WrapError(RECORD_QUERY_FAILED, "wrapped", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestStudioError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(EVENT_PAYLOAD_INVALID, "missing field"))

	assert.True(t, errors.Is(err, NewError(EVENT_PAYLOAD_INVALID, "different message")))
	assert.False(t, errors.Is(err, NewError(EVENT_TYPE_UNKNOWN, "missing field")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable studio error",
			err:  NewRetryableError(GRAPH_CONNECTION_FAILED, "timeout"),
			want: true,
		},
		{
			name: "non-retryable studio error",
			err:  NewError(EVENT_PAYLOAD_INVALID, "missing field"),
			want: false,
		},
		{
			name: "wrapped retryable",
			err:  fmt.Errorf("context: %w", WrapRetryableError(GRAPH_TX_FAILED, "deadlock", errors.New("x"))),
			want: true,
		},
		{
			name: "plain error defaults to retryable",
			err:  errors.New("who knows"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, PRUNE_FAILED, CodeOf(NewError(PRUNE_FAILED, "boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
