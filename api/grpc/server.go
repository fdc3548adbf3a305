// Package grpc exposes dispatch to internal callers over gRPC. Messages are
// carried as google.protobuf.Struct values keyed by the JSON field names of the
// notification types, so no generated code is needed on either side.
package grpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "notifyrelay.v1.NotificationService"

const (
	sendMethod    = "/" + ServiceName + "/Send"
	getLogsMethod = "/" + ServiceName + "/GetLogs"
)

// LogReader returns the log history of a notification
type LogReader interface {
	Logs(ctx context.Context, notificationID string) ([]notification.NotificationLog, error)
}

// Server implements the NotificationService gRPC service
type Server struct {
	dispatcher notification.Dispatcher
	logs       LogReader
	logger     *zap.Logger
}

// NewServer creates a new gRPC server
func NewServer(dispatcher notification.Dispatcher, logs LogReader, logger *zap.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		logs:       logs,
		logger:     logger,
	}
}

// Register attaches the service to a gRPC server
func Register(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&serviceDesc, srv)
}

// Send dispatches one notification synchronously. Delivery failures come back
// in the result; gRPC errors are reserved for malformed requests and store failures.
// Retry count and fallback origin are owned by the retry scheduler and ignored here.
func (s *Server) Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.dispatcher.Send(ctx, req.WithoutEscalation())
	if err != nil {
		s.logger.Error("Dispatch failed",
			zap.Error(err),
			zap.String("channel", string(req.Channel)),
			zap.String("type", req.Type),
		)
		return nil, status.Error(codes.Internal, "failed to record notification")
	}

	out, err := toStruct(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GetLogs returns the log history of a notification
func (s *Server) GetLogs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req logsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.NotificationID == "" {
		return nil, status.Error(codes.InvalidArgument, "notification_id is required")
	}

	logs, err := s.logs.Logs(ctx, req.NotificationID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "notification not found")
		}
		s.logger.Error("Failed to get notification logs", zap.Error(err), zap.String("id", req.NotificationID))
		return nil, status.Error(codes.Internal, "failed to retrieve notification logs")
	}
	if logs == nil {
		logs = []notification.NotificationLog{}
	}

	out, err := toStruct(LogsResponse{NotificationID: req.NotificationID, Logs: logs})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// LoggingInterceptor logs every unary call with its status code
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

type notificationServiceServer interface {
	Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetLogs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(notificationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc := srv.(notificationServiceServer)
		if interceptor == nil {
			return call(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(svc, ctx, req.(*structpb.Struct))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*notificationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler: unaryHandler(sendMethod, func(s notificationServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Send(ctx, in)
			}),
		},
		{
			MethodName: "GetLogs",
			Handler: unaryHandler(getLogsMethod, func(s notificationServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetLogs(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "notifyrelay/v1/notification.proto",
}
