// Package push wraps web-push delivery behind an outcome-classifying
// sender: delivered, endpoint permanently gone, or transient failure.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/trainer-api/pkg/logger"

	"github.com/jwalitptl/trainer-api/internal/model"
)

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// Delivered means the push service accepted the message.
	Delivered Outcome = iota
	// Gone means the push service reported the endpoint permanently
	// invalid; the subscription should be removed.
	Gone
	// Transient covers every other failure; the endpoint is left to
	// self-correct, no retry is scheduled here.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	default:
		return "transient"
	}
}

// Sender delivers a reminder payload to one endpoint.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, msg *model.PushMessage) Outcome
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	// RatePerSecond caps outbound sends across all workers; zero
	// disables the limiter.
	RatePerSecond float64
	RateBurst     int
}

type sender struct {
	config  Config
	limiter *rate.Limiter
	logger  *logger.Logger
}

func NewSender(cfg Config, log *logger.Logger) Sender {
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &sender{
		config:  cfg,
		limiter: limiter,
		logger:  log.WithComponent("push"),
	}
}

func (s *sender) Send(ctx context.Context, sub *model.PushSubscription, msg *model.PushMessage) Outcome {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Error(err, "rate limiter wait aborted", "endpoint", sub.Endpoint)
			return Transient
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(err, "failed to marshal push message")
		return Transient
	}

	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.config.Subscriber,
		VAPIDPublicKey:  s.config.VAPIDPublicKey,
		VAPIDPrivateKey: s.config.VAPIDPrivateKey,
		TTL:             s.config.TTL,
	})
	if err != nil {
		s.logger.Error(err, "push send failed", "endpoint", sub.Endpoint)
		return Transient
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	outcome := ClassifyStatus(resp.StatusCode)
	if outcome != Delivered {
		s.logger.Warn("push service rejected message",
			"endpoint", sub.Endpoint,
			"status", resp.StatusCode,
			"outcome", outcome.String())
	}
	return outcome
}

// ClassifyStatus maps a push-service HTTP status to an Outcome. 404 and
// 410 both mean the subscription no longer exists on the push service.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Delivered
	case status == http.StatusNotFound || status == http.StatusGone:
		return Gone
	default:
		return Transient
	}
}

// GenerateVAPIDKeys creates a fresh key pair for first-run setups.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	return privateKey, publicKey, nil
}
