package ingestion

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

func TestDecodeEntity_Touchpoint(t *testing.T) {
	rawEvent := []byte(`{
		"event_id": "evt-1",
		"occurred_at": "2025-06-01T09:00:00Z",
		"entity": {
			"conversation_id": "conv-1",
			"channel": "email",
			"direction": "outbound",
			"subject": "Intro",
			"sent_at": "2025-06-01T09:00:00Z"
		}
	}`)

	var touchpoint model.Touchpoint
	err := decodeEntity(rawEvent, &touchpoint)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", touchpoint.ConversationID)
	assert.Equal(t, model.DirectionOutbound, touchpoint.Direction)
	require.NotNil(t, touchpoint.SentAt)
}

func TestDecodeEntity_RoundTripsEnvelope(t *testing.T) {
	sentAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	envelope := model.EventEnvelope{
		EventID: "evt-5",
		Entity: utils.MustMarshalJSON(model.Touchpoint{
			ConversationID: "conv-9",
			Channel:        model.ChannelEmail,
			Direction:      model.DirectionOutbound,
			SentAt:         utils.TimePtr(sentAt),
		}),
	}

	var touchpoint model.Touchpoint
	err := decodeEntity(utils.MustMarshalJSON(envelope), &touchpoint)
	require.NoError(t, err)
	assert.Equal(t, "conv-9", touchpoint.ConversationID)
	require.NotNil(t, touchpoint.SentAt)
	assert.Equal(t, sentAt, touchpoint.SentAt.UTC())
}

func TestDecodeEntity_MalformedEnvelopeIsFatal(t *testing.T) {
	var touchpoint model.Touchpoint
	err := decodeEntity([]byte(`{not json`), &touchpoint)
	assert.True(t, apperrors.IsFatal(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestDecodeEntity_MalformedEntityIsFatal(t *testing.T) {
	var touchpoint model.Touchpoint
	err := decodeEntity([]byte(`{"event_id":"evt-1","entity":"not an object"}`), &touchpoint)
	assert.True(t, apperrors.IsFatal(err))
}

func TestDecodeEntity_ValidationFailureIsFatal(t *testing.T) {
	// conversation_id is required on the touchpoint document.
	rawEvent := []byte(`{"event_id":"evt-1","entity":{"channel":"email"}}`)

	var touchpoint model.Touchpoint
	err := decodeEntity(rawEvent, &touchpoint)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDecodeEntity_StatusChangePayload(t *testing.T) {
	rawEvent := []byte(`{"event_id":"evt-2","entity":{"id":"conv-1","status":"won"}}`)

	var payload model.StatusChangePayload
	err := decodeEntity(rawEvent, &payload)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", payload.ID)
	assert.Equal(t, model.ConversationStatusWon, payload.Status)

	// An unknown status fails the oneof constraint.
	var bad model.StatusChangePayload
	err = decodeEntity([]byte(`{"event_id":"evt-3","entity":{"id":"conv-1","status":"archived"}}`), &bad)
	assert.True(t, apperrors.IsFatal(err))
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		wantRetryable bool
	}{
		{
			name:          "conflict is retryable",
			err:           fmt.Errorf("%w: serialization failure", apperrors.ErrConflict),
			wantRetryable: true,
		},
		{
			name:          "database error is retryable",
			err:           fmt.Errorf("%w: connection reset", apperrors.ErrDatabase),
			wantRetryable: true,
		},
		{
			name:          "timeout is retryable",
			err:           fmt.Errorf("%w: backoff cancelled", apperrors.ErrTimeout),
			wantRetryable: true,
		},
		{
			name:          "not found is fatal",
			err:           fmt.Errorf("%w: conversation conv-1", apperrors.ErrNotFound),
			wantRetryable: false,
		},
		{
			name:          "duplicate relationship is fatal",
			err:           fmt.Errorf("%w: edge", apperrors.ErrDuplicateRelationship),
			wantRetryable: false,
		},
		{
			name:          "self relationship is fatal",
			err:           fmt.Errorf("%w: contact", apperrors.ErrSelfRelationship),
			wantRetryable: false,
		},
		{
			name:          "bad request is fatal",
			err:           fmt.Errorf("%w: unknown status", apperrors.ErrBadRequest),
			wantRetryable: false,
		},
		{
			name:          "plain error is fatal",
			err:           errors.New("unexpected"),
			wantRetryable: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			classified := classify(tc.err, "processing failed")
			require.Error(t, classified)
			assert.Equal(t, tc.wantRetryable, apperrors.IsRetryable(classified))
			assert.Equal(t, !tc.wantRetryable, apperrors.IsFatal(classified))
			// The original error kind stays reachable through the wrapper.
			assert.ErrorIs(t, classified, tc.err)
		})
	}

	assert.NoError(t, classify(nil, "never wrapped"))
}
