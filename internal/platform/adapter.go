// Package platform holds the external messaging platform adapters. The
// bridge depends only on the Adapter interface and resolves a concrete
// client from the registry by the mapping's platform value.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bridge-service/internal/models"
	"bridge-service/internal/retry"
)

// Group is the platform-side group/conversation created for a bridged
// channel.
type Group struct {
	ID       string
	Name     string
	ShareURL string
}

// Connector is the platform-side bot/webhook registration on a group.
// ConversationRef is an opaque descriptor some platforms need for proactive
// sends; the core persists it without interpreting it.
type Connector struct {
	BotID           string
	ConversationRef json.RawMessage
	TenantID        *string
}

// Adapter is the capability surface the bridge needs from any platform.
type Adapter interface {
	CreateGroup(ctx context.Context, name string) (Group, error)
	RegisterConnector(ctx context.Context, groupID string, callbackURL string) (Connector, error)
	PostMessage(ctx context.Context, mapping models.ChannelMapping, text string) error
	DestroyConnector(ctx context.Context, botID string) error
	ArchiveGroup(ctx context.Context, groupID string) error
}

// Registry resolves adapters by platform.
type Registry map[models.Platform]Adapter

// Resolve returns the adapter for a platform.
func (r Registry) Resolve(p models.Platform) (Adapter, bool) {
	adapter, ok := r[p]
	return adapter, ok
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// postJSON sends a JSON body and decodes a JSON response into out (when out
// is non-nil). Non-2xx responses become HTTPStatusError so the retry policy
// can classify them.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &retry.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
