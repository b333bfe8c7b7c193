package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/unifyhq/botsync/internal/model"
)

// ListBots performs the authoritative full fetch. It makes a single
// attempt: a failed fetch is retried by the next refresh or fallback poll.
func (c *Client) ListBots(ctx context.Context) ([]model.BotView, error) {
	var resp BotsResponse
	if err := c.getOnce(ctx, "/api/bots", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Message)
	}

	views := make([]model.BotView, 0, len(resp.Data))
	for i := range resp.Data {
		if resp.Data[i].ID == "" {
			c.logger.Warn("skipping bot without id", "name", resp.Data[i].Name)
			continue
		}
		views = append(views, resp.Data[i].ToView())
	}

	c.logger.Debug("fetched bots", "count", len(views))
	return views, nil
}

// GetBot fetches a single bot by id.
func (c *Client) GetBot(ctx context.Context, id string) (model.BotView, error) {
	var resp BotResponse
	if err := c.get(ctx, "/api/bots/"+url.PathEscape(id), nil, &resp); err != nil {
		return model.BotView{}, err
	}
	if !resp.Success {
		return model.BotView{}, fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Message)
	}
	return resp.Data.ToView(), nil
}

// Ping checks that the backend is reachable and accepts the credential.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var resp PingResponse
	if err := c.get(ctx, "/api/ping", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}
