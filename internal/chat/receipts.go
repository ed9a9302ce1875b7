package chat

import (
	"context"
	"fmt"

	"gigchat/internal/models"
)

// MarkRead flags every unread message of the conversation addressed to
// readerID as read, resets the reader's unread counter and tells the room.
// The counter is only reset when the reader is present, since that is where
// the reader's role comes from. Flags and counter change in one store write.
func (s *Service) MarkRead(ctx context.Context, jobID, readerID string) error {
	if jobID == "" || readerID == "" {
		return fmt.Errorf("%w: conversationKey and readerId are required", models.ErrInvalidInput)
	}

	receipt := models.ReadReceipt{JobID: jobID, ReaderID: readerID}
	if entry, ok := s.presence.Lookup(readerID); ok {
		receipt.Role = entry.Role
	} else {
		s.log.Debug("reader offline, unread counter kept", "conversation", jobID, "reader_id", readerID)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	res, err := s.store.MarkRead(storeCtx, receipt)
	if err != nil {
		s.log.Error("failed to mark messages read", "conversation", jobID, "reader_id", readerID, "error", err)
		return fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	if res.Mismatched > 0 {
		s.log.Warn("reader role does not match conversation seat, counter kept",
			"conversation", jobID, "reader_id", readerID, "role", receipt.Role, "conversations", res.Mismatched)
	}

	s.rooms.Broadcast(jobID, models.ServerEvent{
		Event: models.EventMessagesMarkedRead,
		Data:  models.MarkedRead{ConversationKey: jobID, ReaderID: readerID},
	})

	s.log.Debug("messages marked read", "conversation", jobID, "reader_id", readerID, "count", res.Marked, "counters_reset", res.Reset)
	return nil
}
