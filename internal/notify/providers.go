package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"tableservice-platform/internal/config"
	"tableservice-platform/pkg/logger"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/patrickmn/go-cache"
)

// NewProvider builds the provider named by PUSH_PROVIDER.
func NewProvider(cfg config.PushConfig) (Provider, error) {
	switch cfg.Provider {
	case config.PushShoutrrr:
		return NewShoutrrrProvider(cfg.Timeout), nil
	case config.PushWebhook:
		return NewWebhookProvider(&http.Client{Timeout: cfg.Timeout}), nil
	case config.PushLog, "":
		return LogProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}

// ShoutrrrProvider treats each endpoint target as a shoutrrr service URL
// (ntfy://, pushover://, telegram://, ...). Routers are built lazily and
// kept for an hour per URL.
type ShoutrrrProvider struct {
	timeout time.Duration
	senders *cache.Cache
}

func NewShoutrrrProvider(timeout time.Duration) *ShoutrrrProvider {
	return &ShoutrrrProvider{timeout: timeout, senders: cache.New(time.Hour, 10*time.Minute)}
}

func (s *ShoutrrrProvider) Name() string { return config.PushShoutrrr }

func (s *ShoutrrrProvider) Deliver(_ context.Context, ep Endpoint, p Payload) error {
	sender, err := s.sender(ep.Target)
	if err != nil {
		return err
	}

	params := stypes.Params{}
	if p.Title != "" {
		params.SetTitle(p.Title)
	}
	for _, err := range sender.Send(p.Body, &params) {
		if err != nil {
			return fmt.Errorf("shoutrrr send: %w", err)
		}
	}
	return nil
}

func (s *ShoutrrrProvider) sender(url string) (*router.ServiceRouter, error) {
	if v, ok := s.senders.Get(url); ok {
		return v.(*router.ServiceRouter), nil
	}
	sender, err := shoutrrr.CreateSender(url)
	if err != nil {
		// the parse error echoes the URL, which carries service tokens
		return nil, errors.New("invalid shoutrrr endpoint")
	}
	if s.timeout > 0 {
		sender.Timeout = s.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	s.senders.SetDefault(url, sender)
	return sender, nil
}

// WebhookProvider POSTs the payload as JSON to the endpoint target.
type WebhookProvider struct {
	client *http.Client
}

func NewWebhookProvider(client *http.Client) *WebhookProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookProvider{client: client}
}

func (w *WebhookProvider) Name() string { return config.PushWebhook }

type webhookBody struct {
	StaffID string `json:"staff_id"`
	Payload
}

func (w *WebhookProvider) Deliver(ctx context.Context, ep Endpoint, p Payload) error {
	body, err := json.Marshal(webhookBody{StaffID: ep.StaffID, Payload: p})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogProvider only logs. It is the default for local runs.
type LogProvider struct{}

func (LogProvider) Name() string { return config.PushLog }

func (LogProvider) Deliver(ctx context.Context, ep Endpoint, p Payload) error {
	logger.From(ctx).Info("push (log provider)",
		"endpoint_id", ep.ID, "staff_id", ep.StaffID, "call_id", p.CallID, "title", p.Title)
	return nil
}
