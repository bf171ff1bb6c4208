package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/service/publisher"
)

const (
	HeaderEvent     = "X-Quill-Event"
	HeaderDelivery  = "X-Quill-Delivery"
	HeaderSignature = "X-Quill-Signature"
)

// WebhookPublisher posts each event as JSON to a configured URL. When a secret
// is set the body is signed with HMAC-SHA256.
type WebhookPublisher struct {
	logger *zap.Logger
	client *http.Client
	cfg    config.WebhookConfig
}

func NewWebhookPublisher(cfg config.WebhookConfig, logger *zap.Logger) publisher.Publisher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPublisher{
		logger: logger,
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

func (p *WebhookPublisher) GetName() string {
	return "webhook:" + p.cfg.Name
}

func (p *WebhookPublisher) Config() publisher.PublishConfig {
	return publisher.PublishConfig{
		Name:    p.cfg.Name,
		Enabled: p.cfg.URL != "",
		Events:  p.cfg.Events,
		Config:  map[string]string{"url": p.cfg.URL},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, event publication.Event) (*publisher.PublishResult, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(event.Kind))
	req.Header.Set(HeaderDelivery, event.ID)
	if p.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(p.cfg.Secret, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("webhook %s returned status %d: %s", p.cfg.Name, resp.StatusCode, string(respBody))
	}

	return &publisher.PublishResult{
		Success:     true,
		StatusCode:  resp.StatusCode,
		PublishedAt: time.Now(),
	}, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
