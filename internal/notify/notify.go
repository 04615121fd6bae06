// Package notify posts workflow events to an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const (
	EventCaptionApproved    = "caption_approved"
	EventRecaptionRequested = "recaption_requested"
)

var ErrNoURL = errors.New("webhook url is not configured")

// Error is a non-2xx answer from the receiving webhook.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("webhook responded %d: %s", e.Status, e.Message)
}

type Config struct {
	// URL receives asynchronous events. Empty disables Notify.
	URL        string
	MaxRetries uint64
	Backoff    time.Duration
	Timeout    time.Duration
}

// Notifier delivers events. Notify is fire-and-forget; Send waits.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, log logrus.FieldLogger) *Notifier {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithField("component", "notify"),
	}
}

// Enabled reports whether Notify will deliver anything.
func (n *Notifier) Enabled() bool {
	return n != nil && strings.TrimSpace(n.cfg.URL) != ""
}

// Notify posts the event in the background and reports whether a delivery
// was started. Failures are logged, never returned.
func (n *Notifier) Notify(event string, payload map[string]any) bool {
	if !n.Enabled() {
		return false
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout*time.Duration(n.cfg.MaxRetries+1))
		defer cancel()
		if err := n.Send(ctx, n.cfg.URL, event, payload); err != nil {
			n.log.WithError(err).WithField("event", event).Warn("outbound webhook failed")
			return
		}
		n.log.WithField("event", event).Debug("outbound webhook delivered")
	}()
	return true
}

// Send posts the event to url, retrying network errors and 5xx answers.
func (n *Notifier) Send(ctx context.Context, url, event string, payload map[string]any) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrNoURL
	}
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["event"] = event
	if _, ok := body["timestamp"]; !ok {
		body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	backoff := retry.WithMaxRetries(n.cfg.MaxRetries, retry.NewExponential(n.cfg.Backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return n.post(ctx, url, encoded)
	})
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(&Error{Status: http.StatusBadGateway, Message: "webhook unreachable"})
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	message := strings.TrimSpace(string(snippet))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	callErr := &Error{Status: resp.StatusCode, Message: message}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retry.RetryableError(callErr)
	}
	return callErr
}

// Close stops accepting events and waits for in-flight deliveries.
func (n *Notifier) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
