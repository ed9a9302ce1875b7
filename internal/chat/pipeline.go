package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gigchat/internal/content"
	"gigchat/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// SendRequest is a message submitted by a client.
type SendRequest struct {
	ConversationKey string `validate:"required"`
	SenderID        string `validate:"required"`
	SenderName      string
	SenderRole      models.Role
	ReceiverID      string `validate:"required"`
	Body            string `validate:"required"`
	Kind            models.MessageKind
}

// Send validates, persists and fans out a message. Validation and
// persistence failures abort the send and nothing is broadcast. Updating the
// conversation summary and notifying the receiver are best-effort.
func (s *Service) Send(ctx context.Context, req SendRequest) (models.Message, error) {
	msg, err := s.newMessage(req)
	if err != nil {
		return models.Message{}, err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	stored, err := s.store.InsertMessage(storeCtx, msg)
	if err != nil {
		s.log.Error("failed to persist message", "conversation", msg.JobID, "sender_id", msg.SenderID, "error", err)
		return models.Message{}, fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}

	s.bestEffort("conversation summary update", func() error {
		found, err := s.store.UpdateSummary(storeCtx, models.SummaryUpdate{
			JobID:         stored.JobID,
			SenderID:      stored.SenderID,
			ReceiverID:    stored.ReceiverID,
			LastMessage:   content.Truncate(stored.Body, models.LastMessagePreviewLength),
			LastMessageAt: stored.CreatedAt,
		})
		if err == nil && !found {
			s.log.Debug("no conversation for summary", "conversation", stored.JobID, "sender_id", stored.SenderID, "receiver_id", stored.ReceiverID)
		}
		return err
	}, "conversation", stored.JobID)

	s.rooms.Broadcast(stored.JobID, models.ServerEvent{
		Event: models.EventMessageReceive,
		Data:  stored,
	})

	s.notifyReceiver(ctx, stored)

	return stored, nil
}

func (s *Service) newMessage(req SendRequest) (models.Message, error) {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return models.Message{}, fmt.Errorf("%w: missing %s", models.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return models.Message{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if strings.TrimSpace(req.Body) == "" {
		return models.Message{}, fmt.Errorf("%w: missing Body", models.ErrInvalidInput)
	}
	if content.Length(req.Body) > models.MaxBodyLength {
		return models.Message{}, fmt.Errorf("%w: %d characters allowed", models.ErrBodyTooLong, models.MaxBodyLength)
	}

	role := req.SenderRole
	switch {
	case role == "":
		role = models.RoleUser
	case !role.Valid() && role != models.RoleUser:
		return models.Message{}, fmt.Errorf("%w: unknown sender role %q", models.ErrInvalidInput, role)
	}

	kind := req.Kind
	switch {
	case kind == "":
		kind = models.MessageKindText
	case !kind.Valid():
		return models.Message{}, fmt.Errorf("%w: unknown message kind %q", models.ErrInvalidInput, kind)
	}

	name := content.SanitizeName(req.SenderName, models.MaxNameLength)
	if name == "" {
		if entry, ok := s.presence.Lookup(req.SenderID); ok {
			name = entry.DisplayName
		}
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		JobID:      req.ConversationKey,
		SenderID:   req.SenderID,
		SenderName: name,
		SenderRole: role,
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
		Kind:       kind,
		CreatedAt:  s.now().UTC(),
		Read:       false,
	}

	if kind == models.MessageKindText {
		html, err := content.RenderMarkdown(req.Body)
		if err != nil {
			s.log.Warn("failed to render message preview", "sender_id", req.SenderID, "error", err)
		}
		msg.HTML = html
	}

	return msg, nil
}

// notifyReceiver alerts the receiver outside of room membership: directly on
// their connection when present, otherwise through the offline notifier.
func (s *Service) notifyReceiver(ctx context.Context, msg models.Message) {
	note := models.Notification{
		Type:            "message",
		ConversationKey: msg.JobID,
		SenderName:      msg.SenderName,
		Body:            content.Truncate(msg.Body, models.NotificationPreviewLength),
	}

	if entry, ok := s.presence.Lookup(msg.ReceiverID); ok {
		if !entry.Conn.Send(models.ServerEvent{Event: models.EventNotificationNew, Data: note}) {
			s.log.Debug("notification dropped", "receiver_id", msg.ReceiverID)
		}
		return
	}

	if s.offline == nil {
		return
	}

	s.background.Go(func() {
		pushCtx, cancel := s.storeContext(ctx)
		defer cancel()
		s.bestEffort("offline notification", func() error {
			return s.offline.Notify(pushCtx, msg.ReceiverID, note)
		}, "receiver_id", msg.ReceiverID)
	})
}
