// Package webhook delivers score-change notifications to registered
// webhook endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/retry"
	"github.com/trust-scanner/internal/scoring"
	"github.com/trust-scanner/internal/types"
)

// Store is the webhook persistence surface the dispatcher needs.
type Store interface {
	ListActive(ctx context.Context) ([]*models.Webhook, error)
	RecordSuccess(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, maxFailures int) (int, error)
}

// Payload is the JSON body POSTed to a webhook endpoint. Delivery is
// at-least-once; timestamp plus address is a sufficient dedupe key for
// receivers.
type Payload struct {
	Event     types.WebhookEvent `json:"event"`
	Address   string             `json:"address"`
	OldScore  *int               `json:"old_score"`
	NewScore  int                `json:"new_score"`
	Tier      types.TrustTier    `json:"tier"`
	Threshold *int               `json:"threshold,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Dispatcher matches score changes against registered webhooks and posts
// notifications. It runs once after each completed scoring pass.
type Dispatcher struct {
	store       Store
	client      *http.Client
	maxFailures int
	retryConfig *retry.Config
	now         func() time.Time
}

// Config holds configuration for creating a Dispatcher.
type Config struct {
	// Store persists webhook delivery metadata. Required.
	Store Store

	// Timeout bounds each delivery attempt. Default: 10s.
	Timeout time.Duration

	// MaxFailures disables a webhook after that many consecutive failed
	// deliveries. Default: 5.
	MaxFailures int

	// Retry overrides the default retry discipline, used in tests.
	Retry *retry.Config
}

// NewDispatcher validates the configuration and returns a dispatcher.
func NewDispatcher(cfg *Config) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("webhook store cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	retryConfig := cfg.Retry
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}

	return &Dispatcher{
		store:       cfg.Store,
		client:      &http.Client{Timeout: timeout},
		maxFailures: maxFailures,
		retryConfig: retryConfig,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Summary reports one dispatch pass.
type Summary struct {
	Matched   int
	Delivered int
	Failed    int
	Disabled  int
}

// Dispatch delivers notifications for a scoring pass's changes. Each
// matched (webhook, change) pair is delivered independently; failures
// advance the webhook's consecutive-failure counter.
func (d *Dispatcher) Dispatch(ctx context.Context, changes []scoring.ScoreChange) (*Summary, error) {
	logger := logging.FromContext(ctx)
	summary := &Summary{}

	if len(changes) == 0 {
		return summary, nil
	}

	hooks, err := d.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return summary, nil
	}

	for _, change := range changes {
		for _, hook := range hooks {
			if !Matches(hook, &change) {
				continue
			}
			summary.Matched++

			payload := &Payload{
				Event:     hook.EventType,
				Address:   change.Address,
				OldScore:  change.Old,
				NewScore:  change.New,
				Tier:      types.TierForScore(change.New),
				Threshold: hook.Threshold,
				Timestamp: d.now(),
			}

			if err := d.deliver(ctx, hook.URL, payload); err != nil {
				summary.Failed++
				count, recErr := d.store.RecordFailure(ctx, hook.ID, d.maxFailures)
				if recErr != nil {
					logger.WithError(recErr).WithField("webhook", hook.ID).Error("failed to record delivery failure")
					continue
				}
				entry := logger.WithError(err).WithFields(map[string]interface{}{
					"webhook":  hook.ID,
					"failures": count,
				})
				if count >= d.maxFailures {
					summary.Disabled++
					entry.Warn("webhook disabled after repeated delivery failures")
				} else {
					entry.Warn("webhook delivery failed")
				}
				continue
			}

			summary.Delivered++
			if err := d.store.RecordSuccess(ctx, hook.ID); err != nil {
				logger.WithError(err).WithField("webhook", hook.ID).Error("failed to record delivery success")
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"matched":   summary.Matched,
		"delivered": summary.Delivered,
		"failed":    summary.Failed,
		"disabled":  summary.Disabled,
	}).Info("webhook dispatch complete")
	return summary, nil
}

// deliver POSTs the payload, treating any non-2xx status as a failure.
// Transient failures retry with the standard 3-attempt backoff.
func (d *Dispatcher) deliver(ctx context.Context, url string, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return retry.Do(ctx, d.retryConfig, retry.Classify, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("endpoint returned %d", resp.StatusCode)
		}
		return nil
	})
}

// Matches reports whether a webhook subscribes to a score change.
func Matches(hook *models.Webhook, change *scoring.ScoreChange) bool {
	if hook.WalletAddress != nil && *hook.WalletAddress != change.Address {
		return false
	}

	// A wallet's first ever score has no delta: only score_change fires,
	// and the threshold filter does not apply.
	if change.Old == nil {
		return hook.EventType == types.EventScoreChange
	}

	old := *change.Old
	delta := change.New - old

	switch hook.EventType {
	case types.EventScoreDrop:
		if delta >= 0 {
			return false
		}
	case types.EventScoreRise:
		if delta <= 0 {
			return false
		}
	case types.EventScoreChange:
		if delta == 0 {
			return false
		}
	default:
		return false
	}

	if hook.Threshold == nil {
		return true
	}
	t := *hook.Threshold

	switch hook.EventType {
	case types.EventScoreDrop:
		return old >= t && change.New < t
	case types.EventScoreRise:
		return old <= t && change.New > t
	default:
		return (old >= t && change.New < t) || (old <= t && change.New > t)
	}
}
