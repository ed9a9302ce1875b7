// Package push delivers chat notifications to users that are not connected,
// using the Web Push protocol.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"gigchat/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const defaultTTL = 60

type Config struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
}

type subscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID, endpoint string) error
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type Notifier struct {
	cfg   Config
	store subscriptionStore
	send  sendFunc
	log   *slog.Logger
}

func NewNotifier(cfg Config, store subscriptionStore, log *slog.Logger) *Notifier {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		cfg:   cfg,
		store: store,
		send:  webpush.SendNotificationWithContext,
		log:   log,
	}
}

// GenerateKeys returns a new VAPID key pair.
func GenerateKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}

// PublicKey is the VAPID application server key browsers subscribe with.
func (n *Notifier) PublicKey() string {
	return n.cfg.VAPIDPublicKey
}

// Notify pushes the notification to every subscription of userID.
// Subscriptions the push service reports as gone are removed.
func (n *Notifier) Notify(ctx context.Context, userID string, note models.Notification) error {
	subs, err := n.store.ListPushSubscriptions(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	opts := &webpush.Options{
		Subscriber:      n.cfg.Subscriber,
		VAPIDPublicKey:  n.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: n.cfg.VAPIDPrivateKey,
		TTL:             n.cfg.TTL,
	}

	var errs []error
	for _, sub := range subs {
		resp, err := n.send(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				Auth:   sub.Auth,
				P256dh: sub.P256dh,
			},
		}, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("push to %s: %w", sub.Endpoint, err))
			continue
		}
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			n.log.Info("dropping expired push subscription", "user_id", userID, "endpoint", sub.Endpoint)
			if err := n.store.DeletePushSubscription(ctx, userID, sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
		case resp.StatusCode >= 300:
			errs = append(errs, fmt.Errorf("push to %s: unexpected status %d", sub.Endpoint, resp.StatusCode))
		}
	}
	return errors.Join(errs...)
}
