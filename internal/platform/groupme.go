package platform

import (
	"context"
	"fmt"
	"net/http"

	"bridge-service/internal/models"
)

const groupMeBaseURL = "https://api.groupme.com/v3"

// GroupMeAdapter talks to the GroupMe REST API.
type GroupMeAdapter struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewGroupMeAdapter constructs a GroupMe client.
func NewGroupMeAdapter(token string) *GroupMeAdapter {
	return &GroupMeAdapter{token: token, baseURL: groupMeBaseURL, client: defaultHTTPClient()}
}

type groupMeGroupResponse struct {
	Response struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ShareURL string `json:"share_url"`
	} `json:"response"`
}

type groupMeBotResponse struct {
	Response struct {
		Bot struct {
			BotID string `json:"bot_id"`
		} `json:"bot"`
	} `json:"response"`
}

// CreateGroup creates a shared GroupMe group.
func (a *GroupMeAdapter) CreateGroup(ctx context.Context, name string) (Group, error) {
	var resp groupMeGroupResponse
	err := postJSON(ctx, a.client, a.url("/groups"), nil, map[string]any{
		"name":  name,
		"share": true,
	}, &resp)
	if err != nil {
		return Group{}, fmt.Errorf("groupme create group: %w", err)
	}
	return Group{ID: resp.Response.ID, Name: resp.Response.Name, ShareURL: resp.Response.ShareURL}, nil
}

// RegisterConnector creates a bot on the group pointed at our webhook.
func (a *GroupMeAdapter) RegisterConnector(ctx context.Context, groupID string, callbackURL string) (Connector, error) {
	var resp groupMeBotResponse
	err := postJSON(ctx, a.client, a.url("/bots"), nil, map[string]any{
		"bot": map[string]any{
			"name":         "Incident Bridge",
			"group_id":     groupID,
			"callback_url": callbackURL,
		},
	}, &resp)
	if err != nil {
		return Connector{}, fmt.Errorf("groupme register bot: %w", err)
	}
	return Connector{BotID: resp.Response.Bot.BotID}, nil
}

// PostMessage posts through the group's bot.
func (a *GroupMeAdapter) PostMessage(ctx context.Context, mapping models.ChannelMapping, text string) error {
	err := postJSON(ctx, a.client, a.url("/bots/post"), nil, map[string]any{
		"bot_id": mapping.BotID,
		"text":   text,
	}, nil)
	if err != nil {
		return fmt.Errorf("groupme post: %w", err)
	}
	return nil
}

// DestroyConnector removes the group's bot.
func (a *GroupMeAdapter) DestroyConnector(ctx context.Context, botID string) error {
	err := postJSON(ctx, a.client, a.url("/bots/destroy"), nil, map[string]any{
		"bot_id": botID,
	}, nil)
	if err != nil {
		return fmt.Errorf("groupme destroy bot: %w", err)
	}
	return nil
}

// ArchiveGroup destroys the platform-side group.
func (a *GroupMeAdapter) ArchiveGroup(ctx context.Context, groupID string) error {
	err := postJSON(ctx, a.client, a.url("/groups/"+groupID+"/destroy"), nil, map[string]any{}, nil)
	if err != nil {
		return fmt.Errorf("groupme destroy group: %w", err)
	}
	return nil
}

func (a *GroupMeAdapter) url(path string) string {
	return a.baseURL + path + "?token=" + a.token
}
