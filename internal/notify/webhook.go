// Package notify forwards transitions to outbound webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/eventbus"
)

// Notifier POSTs every transition as JSON to a fixed set of URLs.
type Notifier struct {
	urls       []string
	httpClient *http.Client
	timeout    time.Duration
	onError    func(url string, err error)
}

// New creates a notifier. A zero timeout means 5s.
func New(urls []string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		urls:       append([]string(nil), urls...),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// OnError registers a callback for failed deliveries.
func (n *Notifier) OnError(fn func(url string, err error)) {
	n.onError = fn
}

// Attach subscribes the notifier to transitions on bus.
func (n *Notifier) Attach(bus *eventbus.Bus) {
	if len(n.urls) == 0 {
		return
	}
	bus.Subscribe(eventbus.EventTypeTransition, func(ev eventbus.Event) {
		t, ok := ev.Payload.(*emitter.Transition)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.Send(ctx, t)
	})
	log.Info().Int("webhooks", len(n.urls)).Msg("Transition webhooks enabled")
}

// Send delivers t to every URL. Delivery failures are logged, never returned.
func (n *Notifier) Send(ctx context.Context, t *emitter.Transition) {
	body, err := json.Marshal(t)
	if err != nil {
		log.Error().Err(err).Str("group", t.Group).Msg("Failed to encode transition")
		return
	}
	for _, url := range n.urls {
		if err := n.post(ctx, url, body); err != nil {
			log.Warn().Err(err).Str("url", url).Str("event_id", t.ID).Msg("Webhook delivery failed")
			if n.onError != nil {
				n.onError(url, err)
			}
			continue
		}
		log.Debug().Str("url", url).Str("event_id", t.ID).Msg("Webhook delivered")
	}
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
