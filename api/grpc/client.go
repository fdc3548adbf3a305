package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// Client calls the NotificationService over an established connection.
// It satisfies notification.Dispatcher.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client for conn
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Send dispatches req on the server
func (c *Client) Send(ctx context.Context, req notification.NotificationRequest) (*notification.Result, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, sendMethod, in, out); err != nil {
		return nil, err
	}
	return resultFromStruct(out)
}

// GetLogs returns the log history of a notification
func (c *Client) GetLogs(ctx context.Context, notificationID string) ([]notification.NotificationLog, error) {
	in, err := toStruct(logsRequest{NotificationID: notificationID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, getLogsMethod, in, out); err != nil {
		return nil, err
	}
	var resp LogsResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}
