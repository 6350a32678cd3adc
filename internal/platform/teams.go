package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bridge-service/internal/models"
)

// TeamsAdapter sends proactive messages to Microsoft Teams conversations
// using the Bot Framework connector API. Teams conversations are installed
// from the platform side, so CreateGroup/RegisterConnector are not
// supported; the mapping carries a conversation reference captured at
// install time, which this adapter replays for outbound sends.
type TeamsAdapter struct {
	appID       string
	appPassword string
	client      *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// ErrNotSupported reports a capability the platform does not offer.
var ErrNotSupported = errors.New("operation not supported on this platform")

// NewTeamsAdapter constructs a Teams connector client.
func NewTeamsAdapter(appID, appPassword string) *TeamsAdapter {
	return &TeamsAdapter{appID: appID, appPassword: appPassword, client: defaultHTTPClient()}
}

// teamsConversationRef is the slice of the stored descriptor the adapter
// needs for a proactive send. The rest of the blob is preserved untouched.
type teamsConversationRef struct {
	ServiceURL   string `json:"serviceUrl"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

// CreateGroup is not supported: Teams conversations come from app installs.
func (a *TeamsAdapter) CreateGroup(ctx context.Context, name string) (Group, error) {
	return Group{}, ErrNotSupported
}

// RegisterConnector is not supported: the install flow registers the bot.
func (a *TeamsAdapter) RegisterConnector(ctx context.Context, groupID string, callbackURL string) (Connector, error) {
	return Connector{}, ErrNotSupported
}

// PostMessage replays the stored conversation reference for a proactive send.
func (a *TeamsAdapter) PostMessage(ctx context.Context, mapping models.ChannelMapping, text string) error {
	if len(mapping.ConversationRef) == 0 {
		return fmt.Errorf("teams mapping %d has no conversation reference", mapping.ID)
	}

	var ref teamsConversationRef
	if err := json.Unmarshal(mapping.ConversationRef, &ref); err != nil {
		return fmt.Errorf("teams conversation reference: %w", err)
	}
	if ref.ServiceURL == "" || ref.Conversation.ID == "" {
		return fmt.Errorf("teams mapping %d conversation reference incomplete", mapping.ID)
	}

	token, err := a.token(ctx)
	if err != nil {
		return fmt.Errorf("teams token: %w", err)
	}

	endpoint := strings.TrimSuffix(ref.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(ref.Conversation.ID) + "/activities"
	err = postJSON(ctx, a.client, endpoint, map[string]string{
		"Authorization": "Bearer " + token,
	}, map[string]any{
		"type": "message",
		"text": text,
	}, nil)
	if err != nil {
		return fmt.Errorf("teams post: %w", err)
	}
	return nil
}

// DestroyConnector is a no-op: uninstalling the Teams app is a user action.
func (a *TeamsAdapter) DestroyConnector(ctx context.Context, botID string) error {
	return nil
}

// ArchiveGroup is a no-op for the same reason.
func (a *TeamsAdapter) ArchiveGroup(ctx context.Context, groupID string) error {
	return nil
}

func (a *TeamsAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.appID)
	form.Set("client_secret", a.appPassword)
	form.Set("scope", "https://api.botframework.com/.default")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	a.accessToken = body.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}
