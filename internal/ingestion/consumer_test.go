package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/stratalink/engagement-engine/internal/apperrors"
)

func TestDetermineAckNakAction(t *testing.T) {
	const maxDeliver = 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	retryable := apperrors.NewRetryable(errors.New("db timeout"), "transient failure")
	fatal := apperrors.NewFatal(errors.New("bad payload"), "unmarshal failed")

	testCases := []struct {
		name           string
		processingErr  error
		numDelivered   uint64
		expectedAction AckNakAction
		expectedDelay  time.Duration
	}{
		{
			name:           "success acks",
			processingErr:  nil,
			numDelivered:   1,
			expectedAction: ActionAck,
		},
		{
			name:           "retryable first delivery naks with base delay",
			processingErr:  retryable,
			numDelivered:   1,
			expectedAction: ActionNakDelay,
			expectedDelay:  baseDelay,
		},
		{
			name:           "retryable backoff doubles per attempt",
			processingErr:  retryable,
			numDelivered:   3,
			expectedAction: ActionNakDelay,
			expectedDelay:  4 * time.Second,
		},
		{
			name:           "retryable delay capped at max",
			processingErr:  retryable,
			numDelivered:   4,
			expectedAction: ActionNakDelay,
			expectedDelay:  8 * time.Second,
		},
		{
			name:           "fatal error terminates immediately",
			processingErr:  fatal,
			numDelivered:   1,
			expectedAction: ActionTerm,
		},
		{
			name:           "plain error terminates",
			processingErr:  errors.New("unclassified"),
			numDelivered:   1,
			expectedAction: ActionTerm,
		},
		{
			name:           "retryable at max deliver terminates",
			processingErr:  retryable,
			numDelivered:   maxDeliver,
			expectedAction: ActionTerm,
		},
		{
			name:           "retryable past max deliver terminates",
			processingErr:  retryable,
			numDelivered:   maxDeliver + 1,
			expectedAction: ActionTerm,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metadata := &nats.MsgMetadata{NumDelivered: tc.numDelivered}
			action, delay := determineAckNakAction(tc.processingErr, metadata, maxDeliver, baseDelay, maxDelay)
			assert.Equal(t, tc.expectedAction, action)
			assert.Equal(t, tc.expectedDelay, delay)
		})
	}
}

func TestDetermineAckNakAction_DelayCap(t *testing.T) {
	retryable := apperrors.NewRetryable(errors.New("db timeout"), "transient failure")
	metadata := &nats.MsgMetadata{NumDelivered: 8}

	action, delay := determineAckNakAction(retryable, metadata, 20, time.Second, 30*time.Second)
	assert.Equal(t, ActionNakDelay, action)
	assert.Equal(t, 30*time.Second, delay)
}
