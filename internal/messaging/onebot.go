package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrAPI is returned when the OneBot endpoint answers with a failed status.
var ErrAPI = errors.New("onebot api error")

// OneBotClient calls a OneBot v11 HTTP API (NapCat, go-cqhttp, Lagrange).
// It implements Messenger and RoleResolver.
type OneBotClient struct {
	http *resty.Client
}

type apiResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
}

// NewOneBotClient targets baseURL. accessToken, when set, is sent as a
// bearer token.
func NewOneBotClient(baseURL, accessToken string, timeout time.Duration) *OneBotClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if accessToken != "" {
		c.SetAuthToken(accessToken)
	}
	return &OneBotClient{http: c}
}

// SendGroupMessage calls send_group_msg and returns the new message id.
func (c *OneBotClient) SendGroupMessage(ctx context.Context, group string, msg Message) (string, error) {
	var data struct {
		MessageID json.Number `json:"message_id"`
	}
	body := map[string]any{
		"group_id": numericID(group),
		"message":  msg,
	}
	if err := c.call(ctx, "send_group_msg", body, &data); err != nil {
		return "", err
	}
	if data.MessageID == "" {
		return "", fmt.Errorf("send_group_msg: %w: missing message_id", ErrAPI)
	}
	return data.MessageID.String(), nil
}

// RoleOf calls get_group_member_info.
func (c *OneBotClient) RoleOf(ctx context.Context, group, user string) (Role, error) {
	var data struct {
		Role string `json:"role"`
	}
	body := map[string]any{
		"group_id": numericID(group),
		"user_id":  numericID(user),
		"no_cache": true,
	}
	if err := c.call(ctx, "get_group_member_info", body, &data); err != nil {
		return RoleMember, err
	}
	return ParseRole(data.Role), nil
}

func (c *OneBotClient) call(ctx context.Context, action string, body any, out any) error {
	var env apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		Post("/" + action)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %w: http %d", action, ErrAPI, resp.StatusCode())
	}
	if env.Status == "failed" || env.RetCode != 0 {
		reason := env.Wording
		if reason == "" {
			reason = env.Message
		}
		return fmt.Errorf("%s: %w: retcode %d %s", action, ErrAPI, env.RetCode, reason)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", action, err)
		}
	}
	return nil
}

// numericID sends QQ ids as integers when they parse, as most OneBot
// implementations require.
func numericID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
