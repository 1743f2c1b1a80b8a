package timeline

import (
	"context"
	"fmt"
	"net/url"

	"client/internal/app/message"
	"client/internal/providers/remote"
)

// RemoteSource reads the timeline from the remote service.
type RemoteSource struct {
	client *remote.Client
	prefix string
}

func NewRemoteSource(client *remote.Client, prefix string) *RemoteSource {
	return &RemoteSource{client: client, prefix: prefix}
}

func (r *RemoteSource) FetchTimeline(ctx context.Context, userID string) ([]message.Message, error) {
	data, err := r.client.Get(ctx, r.prefix+"/messages/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}
	msgs, err := message.DecodeMessages(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode timeline: %w", err)
	}
	return msgs, nil
}

func (r *RemoteSource) RateMessage(ctx context.Context, messageID string, rating int) error {
	path := r.prefix + "/messages/" + url.PathEscape(messageID) + "/rating"
	_, err := r.client.PostJSON(ctx, path, map[string]int{"rating": rating}, remote.ReadTimeout)
	return err
}
