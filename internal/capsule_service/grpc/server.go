package grpccapsule

import (
	"context"
	"fmt"
	"net"
	"sync"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/log_service"
	"google.golang.org/grpc"
)

const serviceName = "capfs.CapsuleService"

// capsuleServer is the handler type registered with grpc.
type capsuleServer interface {
	Create(context.Context, *CreateRequest) (*CapsuleResponse, error)
	Open(context.Context, *OpenRequest) (*CapsuleResponse, error)
	Resolve(context.Context, *ResolveRequest) (*CapsuleResponse, error)
	Append(context.Context, *AppendRequest) (*RecordResponse, error)
	Read(context.Context, *ReadRequest) (*RecordResponse, error)
	ReadLatest(context.Context, *ReadLatestRequest) (*RecordResponse, error)
}

func unary[Req any, Resp any](method string, call func(capsuleServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(capsuleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(capsuleServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*capsuleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Create", capsuleServer.Create),
		unary("Open", capsuleServer.Open),
		unary("Resolve", capsuleServer.Resolve),
		unary("Append", capsuleServer.Append),
		unary("Read", capsuleServer.Read),
		unary("ReadLatest", capsuleServer.ReadLatest),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "capfs/capsule_service",
}

// GRPCCapsuleServer exposes a local CapsuleService to remote mounts. Capsule
// handles are opened on first use and kept until Stop.
type GRPCCapsuleServer struct {
	listenAddress string
	svc           cs.CapsuleService
	ls            log_service.LogService
	grpcServer    *grpc.Server

	mu   sync.Mutex
	open map[cs.Name]cs.Capsule
}

func NewGRPCCapsuleServer(addr string, svc cs.CapsuleService, ls log_service.LogService) *GRPCCapsuleServer {
	s := &GRPCCapsuleServer{
		listenAddress: addr,
		svc:           svc,
		ls:            ls,
		grpcServer:    grpc.NewServer(),
		open:          make(map[cs.Name]cs.Capsule),
	}
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

func (s *GRPCCapsuleServer) Address() string {
	return s.listenAddress
}

func (s *GRPCCapsuleServer) Start() error {
	lis, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": s.listenAddress, "error": err.Error()},
		})
		return fmt.Errorf("%w: listen %s: %v", cs.ErrUnavailable, s.listenAddress, err)
	}
	s.listenAddress = lis.Addr().String()
	go s.Serve(lis)
	return nil
}

// Serve blocks serving lis until Stop.
func (s *GRPCCapsuleServer) Serve(lis net.Listener) error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Capsule server listening",
		Metadata: map[string]any{"address": lis.Addr().String()},
	})
	if err := s.grpcServer.Serve(lis); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Capsule server error",
			Metadata: map[string]any{"error": err.Error()},
		})
		return err
	}
	return nil
}

func (s *GRPCCapsuleServer) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping capsule server"})
	s.grpcServer.GracefulStop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.open {
		_ = c.Close()
		delete(s.open, name)
	}
	return nil
}

func (s *GRPCCapsuleServer) capsule(ctx context.Context, name cs.Name) (cs.Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.open[name]; ok {
		return c, nil
	}
	c, err := s.svc.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	s.open[name] = c
	return c, nil
}

func (s *GRPCCapsuleServer) Create(ctx context.Context, req *CreateRequest) (*CapsuleResponse, error) {
	c, err := s.svc.Create(ctx, req.HumanName)
	if err != nil {
		return nil, toStatus(err)
	}
	s.mu.Lock()
	s.open[c.Name()] = c
	s.mu.Unlock()
	return &CapsuleResponse{Name: c.Name()}, nil
}

func (s *GRPCCapsuleServer) Open(ctx context.Context, req *OpenRequest) (*CapsuleResponse, error) {
	if _, err := s.capsule(ctx, req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &CapsuleResponse{Name: req.Name}, nil
}

func (s *GRPCCapsuleServer) Resolve(ctx context.Context, req *ResolveRequest) (*CapsuleResponse, error) {
	name, err := s.svc.Resolve(ctx, req.HumanName)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CapsuleResponse{Name: name}, nil
}

func (s *GRPCCapsuleServer) Append(ctx context.Context, req *AppendRequest) (*RecordResponse, error) {
	c, err := s.capsule(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	rec, err := c.Append(ctx, req.Payload, req.Prev)
	if err != nil {
		s.ls.Debug(log_service.LogEvent{
			Message:  "Append rejected",
			Metadata: map[string]any{"capsule": req.Name.String(), "error": err.Error()},
		})
		return nil, toStatus(err)
	}
	return &RecordResponse{Record: *rec}, nil
}

func (s *GRPCCapsuleServer) Read(ctx context.Context, req *ReadRequest) (*RecordResponse, error) {
	c, err := s.capsule(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	rec, err := c.Read(ctx, req.Number)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecordResponse{Record: *rec}, nil
}

func (s *GRPCCapsuleServer) ReadLatest(ctx context.Context, req *ReadLatestRequest) (*RecordResponse, error) {
	c, err := s.capsule(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	rec, err := c.ReadLatest(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecordResponse{Record: *rec}, nil
}

var _ capsuleServer = (*GRPCCapsuleServer)(nil)
