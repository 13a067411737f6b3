package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/restream/internal/config"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// Payload is the JSON body POSTed to every endpoint
type Payload struct {
	Event     string                 `json:"event"`
	EventID   string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      models.BroadcastStatus `json:"data"`
}

// Endpoint is a notification target
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// Wants reports whether the endpoint subscribed to eventType. An empty list
// subscribes to everything; entries may omit the "broadcast." prefix.
func (e Endpoint) Wants(eventType string) bool {
	if len(e.Events) == 0 {
		return true
	}
	short := strings.TrimPrefix(eventType, "broadcast.")
	for _, want := range e.Events {
		if want == eventType || want == short || want == "*" {
			return true
		}
	}
	return false
}

// Service delivers signed lifecycle notifications with retry
type Service struct {
	client     *http.Client
	endpoints  []Endpoint
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

// NewService creates a webhook service from config
func NewService(cfg config.WebhooksConfig, logger *zerolog.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	endpoints := make([]Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		endpoints = append(endpoints, Endpoint{URL: ep.URL, Secret: ep.Secret, Events: ep.Events})
	}

	l := log.Logger
	if logger != nil {
		l = *logger
	}

	return &Service{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoints:  endpoints,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		logger:     l.With().Str("component", "webhook").Logger(),
	}
}

// Name implements events.Publisher
func (s *Service) Name() string {
	return "webhook"
}

// Publish implements events.Publisher. Endpoints are notified concurrently;
// the returned error joins every endpoint that still failed after retries.
func (s *Service) Publish(ctx context.Context, event models.BroadcastEvent) error {
	payload := Payload{
		Event:     event.Type,
		EventID:   event.ID,
		Timestamp: event.Timestamp,
		Data:      event.Status,
	}
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ep := range s.endpoints {
		if !ep.Wants(event.Type) {
			continue
		}

		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			if err := s.deliverWithRetry(ctx, ep, payload, body); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(ep)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// deliverWithRetry retries failed deliveries with exponential backoff
func (s *Service) deliverWithRetry(ctx context.Context, ep Endpoint, payload Payload, body []byte) error {
	delay := s.backoff
	var err error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook %s: %w", ep.URL, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = s.deliver(ctx, ep, payload, body); err == nil {
			return nil
		}

		s.logger.Warn().
			Err(err).
			Str("url", ep.URL).
			Str("event", payload.Event).
			Int("attempt", attempt+1).
			Msg("Webhook delivery failed")
	}

	return fmt.Errorf("webhook %s: %w", ep.URL, err)
}

// deliver attempts to deliver a webhook once
func (s *Service) deliver(ctx context.Context, ep Endpoint, payload Payload, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Restream-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", payload.Event)
	req.Header.Set("X-Webhook-Delivery", payload.EventID)

	// Add HMAC signature if secret is configured
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Signature", GenerateSignature(body, ep.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// GenerateSignature generates the HMAC-SHA256 signature for a payload
func GenerateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a signature header in constant time
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(GenerateSignature(payload, secret)), []byte(signature))
}
