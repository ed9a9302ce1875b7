package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gigchat/internal/models"

	"github.com/samber/lo"
	"go.etcd.io/bbolt"
)

var (
	bucketConversations     = []byte("conversations")
	bucketMessages          = []byte("messages")
	bucketPushSubscriptions = []byte("push_subscriptions")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketConversations, bucketMessages, bucketPushSubscriptions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// GetOrCreateConversation returns the conversation identified by init,
// creating it on first contact. The bool result reports creation.
func (s *BboltStorage) GetOrCreateConversation(ctx context.Context, init models.ConversationInit) (models.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, false, err
	}
	if init.JobID == "" || init.ClientID == "" || init.WorkerID == "" {
		return models.Conversation{}, false, fmt.Errorf("%w: jobId, clientId and workerId are required", models.ErrInvalidInput)
	}
	if init.ClientID == init.WorkerID {
		return models.Conversation{}, false, fmt.Errorf("%w: client and worker must differ", models.ErrInvalidInput)
	}

	var (
		conv    models.Conversation
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		key := conversationKey(init.JobID, init.ClientID, init.WorkerID)

		if data := b.Get(key); data != nil {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}
			conv = dbConv.toModel()
			return nil
		}

		dbConv := DBConversation{
			JobID:      init.JobID,
			ClientID:   init.ClientID,
			WorkerID:   init.WorkerID,
			JobTitle:   init.JobTitle,
			ClientName: init.ClientName,
			WorkerName: init.WorkerName,
			CreatedAt:  s.now().UnixMilli(),
		}
		data, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		if err := b.Put(dbConv.Key(), data); err != nil {
			return err
		}
		conv = dbConv.toModel()
		created = true
		return nil
	})
	return conv, created, err
}

// GetConversation returns models.ErrNotFound when no conversation matches ref.
func (s *BboltStorage) GetConversation(ctx context.Context, ref models.ConversationRef) (models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, err
	}

	var conv models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConversations).Get(conversationKey(ref.JobID, ref.ClientID, ref.WorkerID))
		if data == nil {
			return models.ErrNotFound
		}
		var dbConv DBConversation
		if err := dbConv.UnmarshalBinary(data); err != nil {
			return err
		}
		conv = dbConv.toModel()
		return nil
	})
	return conv, err
}

// ListConversations returns conversations userID takes part in, most recent
// activity first.
func (s *BboltStorage) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var convs []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbConv.ClientID == userID || dbConv.WorkerID == userID {
				convs = append(convs, dbConv.toModel())
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return activity(convs[i]).After(activity(convs[j]))
	})
	return convs, nil
}

func activity(c models.Conversation) time.Time {
	if c.LastMessageAt.IsZero() {
		return c.CreatedAt
	}
	return c.LastMessageAt
}

// InsertMessage appends msg to the message log of its job and returns the
// record as stored.
func (s *BboltStorage) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if msg.JobID == "" {
		return models.Message{}, errors.New("message missing jobID")
	}

	var stored models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		jobBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(msg.JobID))
		if err != nil {
			return fmt.Errorf("failed to create job bucket: %w", err)
		}

		dbMessage := newDBMessage(msg)
		dbMessage.Seq, err = jobBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := jobBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		stored = dbMessage.toModel()
		return nil
	})
	return stored, err
}

// UpdateSummary records the last message on the conversation between the
// sender and receiver of the job, in either participant order, and sets the
// unread counter of the receiver's role to the number of messages from the
// sender the receiver has not read yet. It reports whether a conversation
// matched.
func (s *BboltStorage) UpdateSummary(ctx context.Context, upd models.SummaryUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		for _, key := range [][]byte{
			conversationKey(upd.JobID, upd.SenderID, upd.ReceiverID),
			conversationKey(upd.JobID, upd.ReceiverID, upd.SenderID),
		} {
			data := b.Get(key)
			if data == nil {
				continue
			}

			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}

			dbConv.LastMessage = upd.LastMessage
			dbConv.LastMessageAt = upd.LastMessageAt.UnixMilli()
			if role, ok := dbConv.seatOf(upd.ReceiverID); ok {
				// A recount keeps the counter right when a mark-read commits
				// between the message insert and this update.
				n, err := countUnread(tx, upd.JobID, upd.SenderID, upd.ReceiverID)
				if err != nil {
					return err
				}
				dbConv.setUnread(role, n)
			}

			newData, err := dbConv.MarshalBinary()
			if err != nil {
				return err
			}
			found = true
			return b.Put(key, newData)
		}
		return nil
	})
	return found, err
}

// MarkRead flips the read flag of every unread message of the job addressed
// to the reader and, in the same transaction, zeroes the reader's unread
// counter on each conversation of the job where the reader holds r.Role.
// A Send that lands in between is either fully read or fully counted.
func (s *BboltStorage) MarkRead(ctx context.Context, r models.ReadReceipt) (models.ReadResult, error) {
	var res models.ReadResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		res = models.ReadResult{}

		marked, err := markMessagesRead(tx, r.JobID, r.ReaderID)
		if err != nil {
			return err
		}
		res.Marked = marked

		if r.Role == "" {
			return nil
		}

		b := tx.Bucket(bucketConversations)
		prefix := jobPrefix(r.JobID)

		var dirty []DBConversation
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			seat, ok := dbConv.seatOf(r.ReaderID)
			if !ok {
				continue
			}
			if seat != r.Role {
				res.Mismatched++
				continue
			}
			if dbConv.resetUnread(seat) {
				dirty = append(dirty, dbConv)
			}
		}

		for _, dbConv := range dirty {
			data, err := dbConv.MarshalBinary()
			if err != nil {
				return err
			}
			if err := b.Put(dbConv.Key(), data); err != nil {
				return err
			}
		}
		res.Reset = len(dirty)
		return nil
	})
	if err != nil {
		return models.ReadResult{}, err
	}
	return res, nil
}

func countUnread(tx *bbolt.Tx, jobID, senderID, receiverID string) (int, error) {
	jobBucket := tx.Bucket(bucketMessages).Bucket([]byte(jobID))
	if jobBucket == nil {
		return 0, nil
	}

	n := 0
	err := jobBucket.ForEach(func(_, v []byte) error {
		var dbMsg DBMessage
		if err := dbMsg.UnmarshalBinary(v); err != nil {
			return err
		}
		if dbMsg.SenderID == senderID && dbMsg.ReceiverID == receiverID && !dbMsg.Read {
			n++
		}
		return nil
	})
	return n, err
}

func markMessagesRead(tx *bbolt.Tx, jobID, readerID string) (int, error) {
	jobBucket := tx.Bucket(bucketMessages).Bucket([]byte(jobID))
	if jobBucket == nil {
		return 0, nil
	}

	type update struct {
		key  []byte
		data []byte
	}
	var updates []update

	err := jobBucket.ForEach(func(k, v []byte) error {
		var dbMsg DBMessage
		if err := dbMsg.UnmarshalBinary(v); err != nil {
			return err
		}
		if dbMsg.ReceiverID != readerID || dbMsg.Read {
			return nil
		}
		dbMsg.Read = true
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return err
		}
		updates = append(updates, update{key: bytes.Clone(k), data: data})
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Puts are not allowed while iterating with ForEach.
	for _, u := range updates {
		if err := jobBucket.Put(u.key, u.data); err != nil {
			return 0, err
		}
	}
	return len(updates), nil
}

// ListMessages returns the messages exchanged in the conversation, oldest first.
func (s *BboltStorage) ListMessages(ctx context.Context, ref models.ConversationRef) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dbMessages []DBMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		jobBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.JobID))
		if jobBucket == nil {
			return nil // No messages for this job
		}
		return jobBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.between(ref.ClientID, ref.WorkerID) {
				dbMessages = append(dbMessages, dbMsg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(dbMessages, func(i, j int) bool {
		return dbMessages[i].CreatedAt < dbMessages[j].CreatedAt
	})
	return lo.Map(dbMessages, func(m DBMessage, _ int) models.Message {
		return m.toModel()
	}), nil
}

func (s *BboltStorage) UpsertPushSubscription(ctx context.Context, sub models.PushSubscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket, err := tx.Bucket(bucketPushSubscriptions).CreateBucketIfNotExists([]byte(sub.UserID))
		if err != nil {
			return fmt.Errorf("failed to create subscription bucket: %w", err)
		}
		dbSub := &DBPushSubscription{
			UserID:   sub.UserID,
			Endpoint: sub.Endpoint,
			Auth:     sub.Auth,
			P256dh:   sub.P256dh,
		}
		data, err := dbSub.MarshalBinary()
		if err != nil {
			return err
		}
		return userBucket.Put(dbSub.Key(), data)
	})
}

func (s *BboltStorage) ListPushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				UserID:   dbSub.UserID,
				Endpoint: dbSub.Endpoint,
				Auth:     dbSub.Auth,
				P256dh:   dbSub.P256dh,
			})
			return nil
		})
	})
	return subs, err
}

func (s *BboltStorage) DeletePushSubscription(ctx context.Context, userID, endpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.Delete([]byte(endpoint))
	})
}
