package platform

import (
	"context"
	"fmt"
	"net/http"

	"bridge-service/internal/models"
)

const slackBaseURL = "https://slack.com/api"

// SlackAdapter talks to the Slack Web API with a bot token.
type SlackAdapter struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewSlackAdapter constructs a Slack client.
func NewSlackAdapter(token string) *SlackAdapter {
	return &SlackAdapter{token: token, baseURL: slackBaseURL, client: defaultHTTPClient()}
}

type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

// CreateGroup creates a public Slack channel.
func (a *SlackAdapter) CreateGroup(ctx context.Context, name string) (Group, error) {
	var resp slackResponse
	err := a.call(ctx, "/conversations.create", map[string]any{"name": name}, &resp)
	if err != nil {
		return Group{}, fmt.Errorf("slack create channel: %w", err)
	}
	return Group{ID: resp.Channel.ID, Name: resp.Channel.Name}, nil
}

// RegisterConnector joins the bot to the channel. Slack delivers inbound
// traffic through the app's event subscription, so the bot user id doubles
// as the connector id.
func (a *SlackAdapter) RegisterConnector(ctx context.Context, groupID string, callbackURL string) (Connector, error) {
	var resp slackResponse
	err := a.call(ctx, "/conversations.join", map[string]any{"channel": groupID}, &resp)
	if err != nil {
		return Connector{}, fmt.Errorf("slack join channel: %w", err)
	}
	return Connector{BotID: "bridge-bot:" + groupID}, nil
}

// PostMessage posts to the mapped channel.
func (a *SlackAdapter) PostMessage(ctx context.Context, mapping models.ChannelMapping, text string) error {
	var resp slackResponse
	err := a.call(ctx, "/chat.postMessage", map[string]any{
		"channel": mapping.ExternalGroupID,
		"text":    text,
	}, &resp)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

// DestroyConnector leaves the channel.
func (a *SlackAdapter) DestroyConnector(ctx context.Context, botID string) error {
	return nil
}

// ArchiveGroup archives the Slack channel.
func (a *SlackAdapter) ArchiveGroup(ctx context.Context, groupID string) error {
	var resp slackResponse
	err := a.call(ctx, "/conversations.archive", map[string]any{"channel": groupID}, &resp)
	if err != nil {
		return fmt.Errorf("slack archive channel: %w", err)
	}
	return nil
}

func (a *SlackAdapter) call(ctx context.Context, path string, body map[string]any, resp *slackResponse) error {
	err := postJSON(ctx, a.client, a.baseURL+path, map[string]string{
		"Authorization": "Bearer " + a.token,
	}, body, resp)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("slack api error: %s", resp.Error)
	}
	return nil
}
