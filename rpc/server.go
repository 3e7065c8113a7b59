// Package rpc serves the projection engine over gRPC. Messages are
// google.protobuf.Struct values so no generated code is needed.
package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"table-projection-go/config"
	"table-projection-go/engine"
	"table-projection-go/settings"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "tableproj.ProjectionService"
	ProjectMethod = "/" + ServiceName + "/Project"
)

// ProjectionServer is the server side of the projection service.
type ProjectionServer interface {
	Project(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProjectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Project",
			Handler:    projectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tableproj/projection.proto",
}

func RegisterProjectionServer(s grpc.ServiceRegistrar, srv ProjectionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func projectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProjectionServer).Project(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ProjectMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProjectionServer).Project(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server decodes a dataset and stored settings per call, resolves the
// settings through the table graph and returns the engine outcome.
type Server struct {
	engine  *engine.Engine
	graph   *settings.Graph
	mem     memory.Allocator
	logger  log.Logger
	timeout time.Duration
}

var _ ProjectionServer = (*Server)(nil)

func NewServer(cfg *config.Config, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	mem := memory.NewGoAllocator()
	return &Server{
		engine: engine.New(engine.Options{
			Allocator:       mem,
			MaxPivotColumns: cfg.Engine.MaxPivotColumns,
			Logger:          logger,
		}),
		graph:   settings.TableGraph(),
		mem:     mem,
		logger:  log.With(logger, "component", "rpc"),
		timeout: time.Duration(cfg.Server.Timeout) * time.Second,
	}
}

func (s *Server) Project(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	requestID := uuid.NewString()
	logger := log.With(s.logger, "request_id", requestID)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := DecodeRequest(s.mem, msg)
	if err != nil {
		level.Warn(logger).Log("msg", "bad request", "err", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	defer req.Data.Release()

	res, err := s.graph.Resolve(settings.Input{Data: req.Data, Structured: req.Structured}, req.Stored)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	snapshot := settings.FromResolved(res)
	level.Debug(logger).Log("msg", "resolved settings", "settings", snapshot)

	out, err := s.engine.Compute(ctx, req.Data, snapshot)
	if err != nil {
		level.Error(logger).Log("msg", "compute failed", "err", err)
		return nil, status.FromContextError(err).Err()
	}
	defer out.Release()

	resp, err := EncodeOutcome(requestID, out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	level.Info(logger).Log("msg", "projected", "outcome", out.Kind, "rows", req.Data.NumRows())
	return resp, nil
}

// NewGRPCServer builds a grpc.Server with the projection service registered.
func NewGRPCServer(cfg *config.Config, logger log.Logger) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.Server.MaxRequestBytes()),
	)
	RegisterProjectionServer(grpcServer, NewServer(cfg, logger))
	return grpcServer
}

// Start listens on the configured address and serves until the listener
// fails or the server is stopped. The returned channel receives the result
// of Serve.
func Start(cfg *config.Config, logger log.Logger) (*grpc.Server, <-chan error, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	listener, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address(), err)
	}
	grpcServer := NewGRPCServer(cfg, logger)
	done := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "projection server listening", "addr", listener.Addr().String())
		done <- grpcServer.Serve(listener)
	}()
	return grpcServer, done, nil
}

// Project calls the projection service over conn.
func Project(ctx context.Context, conn grpc.ClientConnInterface, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, ProjectMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
