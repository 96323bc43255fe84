package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"foldcast/internal/config"
	"foldcast/internal/domain"
	"foldcast/internal/store"
)

// Full method names of the foldcast.v1.Backtest service.
const (
	BacktestServiceName = "foldcast.v1.Backtest"
	RunMethod           = "/foldcast.v1.Backtest/Run"
	PlanMethod          = "/foldcast.v1.Backtest/Plan"
)

// BacktestServer is the server API of the foldcast.v1.Backtest service.
// Requests and responses are google.protobuf.Struct documents with the
// JSON shape of Request, ResultView and PlanView.
type BacktestServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// BacktestServiceDesc describes the foldcast.v1.Backtest service for
// grpc.Server.RegisterService.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Plan", Handler: planHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "foldcast/v1/backtest.proto",
}

// RecoverUnary turns a panicking handler into a codes.Internal error so one
// bad request cannot stop the server.
func RecoverUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc handler panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func planHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Plan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlanMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Plan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var _ BacktestServer = (*GRPCServer)(nil)

// GRPCServer implements BacktestServer on top of a Service.
type GRPCServer struct {
	svc      *Service
	defaults *config.Config
	log      *slog.Logger
}

// NewGRPCServer creates a GRPCServer. Fields absent from a request take
// their values from defaults.
func NewGRPCServer(svc *Service, defaults *config.Config, log *slog.Logger) *GRPCServer {
	return &GRPCServer{svc: svc, defaults: defaults, log: log}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *GRPCServer) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&BacktestServiceDesc, s)
}

// Run executes a backtest.
func (s *GRPCServer) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.Run(ctx, req)
	if err != nil {
		s.log.Warn("grpc run failed", "err", err)
		return nil, grpcError(err)
	}
	return encodeStruct(out.View())
}

// Plan lists the folds of a backtest without running it.
func (s *GRPCServer) Plan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	plan, err := s.svc.Plan(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(plan)
}

func (s *GRPCServer) decode(in *structpb.Struct) (Request, error) {
	req := NewRequest(s.defaults)
	b, err := protojson.Marshal(in)
	if err != nil {
		return req, status.Errorf(codes.InvalidArgument, "encoding request: %v", err)
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return req, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return req, nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// grpcError maps service errors onto gRPC status codes.
func grpcError(err error) error {
	var foldErr *domain.FoldError
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrMisalignedSeries):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &foldErr):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("backtest failed: %v", err))
	}
}
