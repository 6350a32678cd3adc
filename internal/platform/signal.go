package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"bridge-service/internal/models"
)

// SignalAdapter talks to a signal-cli REST gateway.
type SignalAdapter struct {
	baseURL string
	number  string
	client  *http.Client
}

// NewSignalAdapter constructs a Signal client against a signal-cli REST
// endpoint.
func NewSignalAdapter(baseURL, number string) *SignalAdapter {
	return &SignalAdapter{baseURL: baseURL, number: number, client: defaultHTTPClient()}
}

// CreateGroup creates a Signal group owned by the bridge number.
func (a *SignalAdapter) CreateGroup(ctx context.Context, name string) (Group, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := postJSON(ctx, a.client, a.baseURL+"/v1/groups/"+url.PathEscape(a.number), nil, map[string]any{
		"name":    name,
		"members": []string{},
	}, &resp)
	if err != nil {
		return Group{}, fmt.Errorf("signal create group: %w", err)
	}
	return Group{ID: resp.ID, Name: name}, nil
}

// RegisterConnector is implicit for Signal: the bridge number is the bot.
func (a *SignalAdapter) RegisterConnector(ctx context.Context, groupID string, callbackURL string) (Connector, error) {
	return Connector{BotID: a.number}, nil
}

// PostMessage sends into the mapped group.
func (a *SignalAdapter) PostMessage(ctx context.Context, mapping models.ChannelMapping, text string) error {
	err := postJSON(ctx, a.client, a.baseURL+"/v2/send", nil, map[string]any{
		"number":     a.number,
		"recipients": []string{"group." + mapping.ExternalGroupID},
		"message":    text,
	}, nil)
	if err != nil {
		return fmt.Errorf("signal send: %w", err)
	}
	return nil
}

// DestroyConnector is a no-op: the bridge number owns the group.
func (a *SignalAdapter) DestroyConnector(ctx context.Context, botID string) error {
	return nil
}

// ArchiveGroup removes the bridge number from the group.
func (a *SignalAdapter) ArchiveGroup(ctx context.Context, groupID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		a.baseURL+"/v1/groups/"+url.PathEscape(a.number)+"/"+url.PathEscape(groupID), nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("signal leave group: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("signal leave group: status %d", resp.StatusCode)
	}
	return nil
}
