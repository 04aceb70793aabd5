// Package notify pushes operator alerts for engine events to chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultEvents are the event types alerted on when none are configured.
var DefaultEvents = []domain.EventType{
	domain.EventOrderExecuted,
	domain.EventOrderHalted,
	domain.EventSettlementFailed,
	domain.EventCallbackRejected,
}

// Notifier forwards selected events to every sender.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list selects DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool)
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	if len(allowed) == 0 {
		for _, e := range DefaultEvents {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// NotifyEvent renders e and sends it if its type is selected.
func (n *Notifier) NotifyEvent(ctx context.Context, e domain.Event) error {
	if !n.events[e.Type] {
		return nil
	}
	return n.dispatch(ctx, Title(e), Body(e))
}

// Title renders the headline of an alert.
func Title(e domain.Event) string {
	if e.OrderID != 0 {
		return fmt.Sprintf("%s #%d", e.Type, e.OrderID)
	}
	return string(e.Type)
}

// Body renders the detail lines of an alert in key order.
func Body(e domain.Event) string {
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	if e.Account != "" {
		fmt.Fprintf(&b, "account: %s\n", e.Account)
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, e.Detail[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, s.Name()+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
