package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/engine"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/validator"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// Handlers binds entity-change events to the mutation pipelines. Each handler
// unmarshals the envelope, validates the entity document, and classifies the
// resulting error as retryable or fatal for the redelivery decision.
type Handlers struct {
	dispatcher *engine.Dispatcher
}

// NewHandlers creates the event handler set over the dispatcher.
func NewHandlers(dispatcher *engine.Dispatcher) *Handlers {
	return &Handlers{dispatcher: dispatcher}
}

// RegisterAll wires every known event type into the router.
func (h *Handlers) RegisterAll(router *Router) {
	router.Register(model.V1CompanyUpsert, h.handleCompanyUpsert)
	router.Register(model.V1CompanyDelete, h.handleCompanyDelete)
	router.Register(model.V1ContactUpsert, h.handleContactUpsert)
	router.Register(model.V1ContactDelete, h.handleContactDelete)
	router.Register(model.V1ConversationUpsert, h.handleConversationUpsert)
	router.Register(model.V1ConversationStatus, h.handleConversationStatus)
	router.Register(model.V1ConversationDelete, h.handleConversationDelete)
	router.Register(model.V1TouchpointUpsert, h.handleTouchpointUpsert)
	router.Register(model.V1TouchpointUpdate, h.handleTouchpointUpdate)
	router.Register(model.V1TouchpointDelete, h.handleTouchpointDelete)
	router.Register(model.V1RelationshipUpsert, h.handleRelationshipUpsert)
	router.Register(model.V1RelationshipDelete, h.handleRelationshipDelete)
	router.RegisterDefault(h.handleUnknown)
}

// decodeEntity unmarshals the envelope and its entity document into out.
func decodeEntity(rawEvent []byte, out interface{}) error {
	var envelope model.EventEnvelope
	if err := utils.UnmarshalJSON(rawEvent, &envelope); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal event envelope")
	}
	if err := utils.UnmarshalJSON(envelope.Entity, out); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal entity document")
	}
	if err := validator.Validate(out); err != nil {
		return apperrors.NewFatal(fmt.Errorf("%w: %w", apperrors.ErrValidation, err), "entity document failed validation")
	}
	return nil
}

// classify wraps a pipeline error for the redelivery decision. Contention,
// infrastructure, and timeout errors are worth redelivering; everything else
// reflects the message content and never succeeds on retry.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsConflictError(err) || apperrors.IsDatabaseError(err) || apperrors.IsTimeoutError(err) {
		return apperrors.NewRetryable(err, message)
	}
	return apperrors.NewFatal(err, message)
}

func (h *Handlers) handleCompanyUpsert(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var company model.Company
	if err := decodeEntity(rawEvent, &company); err != nil {
		return err
	}
	return classify(h.dispatcher.UpsertCompany(ctx, &company), "failed to upsert company")
}

func (h *Handlers) handleCompanyDelete(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var payload model.DeletePayload
	if err := decodeEntity(rawEvent, &payload); err != nil {
		return err
	}
	err := h.dispatcher.DeleteCompany(ctx, payload.ID)
	if apperrors.IsNotFoundError(err) {
		// Double-delivered delete, the row is already gone
		logger.FromContext(ctx).Debug("Company already deleted", zap.String("company_id", payload.ID))
		return nil
	}
	return classify(err, "failed to delete company")
}

func (h *Handlers) handleContactUpsert(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var contact model.Contact
	if err := decodeEntity(rawEvent, &contact); err != nil {
		return err
	}
	return classify(h.dispatcher.UpsertContact(ctx, &contact), "failed to upsert contact")
}

func (h *Handlers) handleContactDelete(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var payload model.DeletePayload
	if err := decodeEntity(rawEvent, &payload); err != nil {
		return err
	}
	err := h.dispatcher.DeleteContact(ctx, payload.ID)
	if apperrors.IsNotFoundError(err) {
		logger.FromContext(ctx).Debug("Contact already deleted", zap.String("contact_id", payload.ID))
		return nil
	}
	return classify(err, "failed to delete contact")
}

func (h *Handlers) handleConversationUpsert(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var conversation model.Conversation
	if err := decodeEntity(rawEvent, &conversation); err != nil {
		return err
	}
	return classify(h.dispatcher.UpsertConversation(ctx, &conversation), "failed to upsert conversation")
}

func (h *Handlers) handleConversationStatus(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var payload model.StatusChangePayload
	if err := decodeEntity(rawEvent, &payload); err != nil {
		return err
	}
	return classify(h.dispatcher.ChangeConversationStatus(ctx, payload.ID, payload.Status), "failed to change conversation status")
}

func (h *Handlers) handleConversationDelete(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var payload model.DeletePayload
	if err := decodeEntity(rawEvent, &payload); err != nil {
		return err
	}
	err := h.dispatcher.DeleteConversation(ctx, payload.ID)
	if apperrors.IsNotFoundError(err) {
		logger.FromContext(ctx).Debug("Conversation already deleted", zap.String("conversation_id", payload.ID))
		return nil
	}
	return classify(err, "failed to delete conversation")
}

func (h *Handlers) handleTouchpointUpsert(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var touchpoint model.Touchpoint
	if err := decodeEntity(rawEvent, &touchpoint); err != nil {
		return err
	}
	return classify(h.dispatcher.CreateTouchpoint(ctx, &touchpoint), "failed to create touchpoint")
}

func (h *Handlers) handleTouchpointUpdate(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var touchpoint model.Touchpoint
	if err := decodeEntity(rawEvent, &touchpoint); err != nil {
		return err
	}
	if touchpoint.ID == "" {
		return apperrors.NewFatal(apperrors.ErrBadRequest, "touchpoint update without an id")
	}
	return classify(h.dispatcher.UpdateTouchpoint(ctx, &touchpoint), "failed to update touchpoint")
}

func (h *Handlers) handleTouchpointDelete(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var payload model.DeletePayload
	if err := decodeEntity(rawEvent, &payload); err != nil {
		return err
	}
	err := h.dispatcher.DeleteTouchpoint(ctx, payload.ID)
	if apperrors.IsNotFoundError(err) {
		logger.FromContext(ctx).Debug("Touchpoint already deleted", zap.String("touchpoint_id", payload.ID))
		return nil
	}
	return classify(err, "failed to delete touchpoint")
}

func (h *Handlers) handleRelationshipUpsert(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var relationship model.Relationship
	if err := decodeEntity(rawEvent, &relationship); err != nil {
		return err
	}
	return classify(h.dispatcher.CreateRelationship(ctx, &relationship), "failed to create relationship")
}

func (h *Handlers) handleRelationshipDelete(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	var payload model.DeletePayload
	if err := decodeEntity(rawEvent, &payload); err != nil {
		return err
	}
	err := h.dispatcher.DeleteRelationship(ctx, payload.ID)
	if apperrors.IsNotFoundError(err) {
		logger.FromContext(ctx).Debug("Relationship already deleted", zap.String("relationship_id", payload.ID))
		return nil
	}
	return classify(err, "failed to delete relationship")
}

func (h *Handlers) handleUnknown(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	logger.FromContext(ctx).Warn("Dropping event with no registered handler",
		zap.String("subject", metadata.MessageSubject))
	return nil
}
