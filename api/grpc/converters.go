package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// toStruct converts any JSON-encodable value into a protobuf Struct
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return structpb.NewStruct(fields)
}

// fromStruct decodes a protobuf Struct into v using the JSON field names
func fromStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// LogsResponse is the payload of GetLogs
type LogsResponse struct {
	NotificationID string                         `json:"notification_id"`
	Logs           []notification.NotificationLog `json:"logs"`
}

type logsRequest struct {
	NotificationID string `json:"notification_id"`
}

func requestFromStruct(s *structpb.Struct) (notification.NotificationRequest, error) {
	var req notification.NotificationRequest
	err := fromStruct(s, &req)
	return req, err
}

func resultFromStruct(s *structpb.Struct) (*notification.Result, error) {
	var res notification.Result
	if err := fromStruct(s, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
