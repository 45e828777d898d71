package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

func newTestRouter(t *testing.T) *Router {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return NewRouter()
}

func routedMetadata(subject string) *model.MessageMetadata {
	return &model.MessageMetadata{
		MessageID:      "msg-1",
		MessageSubject: subject,
		NumDelivered:   1,
	}
}

func TestRouter_Route_ExactMatch(t *testing.T) {
	router := newTestRouter(t)

	var handledType model.EventType
	var handledPayload []byte
	router.Register(model.V1ContactUpsert, func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		handledType = eventType
		handledPayload = rawEvent
		return nil
	})

	payload := []byte(`{"event_id":"evt-1"}`)
	err := router.Route(context.Background(), routedMetadata(string(model.V1ContactUpsert)), payload)
	assert.NoError(t, err)
	assert.Equal(t, model.V1ContactUpsert, handledType)
	assert.Equal(t, payload, handledPayload)
}

func TestRouter_Route_HandlerErrorPropagates(t *testing.T) {
	router := newTestRouter(t)

	sentinel := errors.New("pipeline failed")
	router.Register(model.V1CompanyDelete, func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return sentinel
	})

	err := router.Route(context.Background(), routedMetadata(string(model.V1CompanyDelete)), []byte(`{}`))
	assert.ErrorIs(t, err, sentinel)
}

func TestRouter_Route_UnknownSubjectUsesDefault(t *testing.T) {
	router := newTestRouter(t)

	defaultCalled := false
	router.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		defaultCalled = true
		return nil
	})

	err := router.Route(context.Background(), routedMetadata("v1.entities.widget.upsert"), []byte(`{}`))
	assert.NoError(t, err)
	assert.True(t, defaultCalled)
}

func TestRouter_Route_NoHandlerNoDefault(t *testing.T) {
	router := newTestRouter(t)

	// Nothing registered: the message is dropped without error so it does
	// not redeliver forever.
	err := router.Route(context.Background(), routedMetadata(string(model.V1TouchpointUpsert)), []byte(`{}`))
	assert.NoError(t, err)
}

func TestKnownEventType(t *testing.T) {
	eventType, found := model.KnownEventType("v1.entities.conversation.status")
	assert.True(t, found)
	assert.Equal(t, model.V1ConversationStatus, eventType)

	_, found = model.KnownEventType("v2.entities.conversation.status")
	assert.False(t, found)

	_, found = model.KnownEventType("")
	assert.False(t, found)
}
