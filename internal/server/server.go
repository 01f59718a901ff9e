package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	pb "github.com/ppiankov/govtrail/api/govtrail/v1"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/model"
)

// Config holds gRPC server configuration.
type Config struct {
	Port int
}

// Server implements the GovernanceService gRPC server over an engine.
type Server struct {
	engine *engine.Engine
	health *health.Server
	cfg    Config

	grpcServer *grpc.Server
}

// New creates a gRPC server with the governance and health services registered.
func New(e *engine.Engine, cfg Config) *Server {
	s := &Server{
		engine:     e,
		health:     health.NewServer(),
		cfg:        cfg,
		grpcServer: grpc.NewServer(),
	}
	pb.RegisterGovernanceServiceServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn starts the gRPC server on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service as not serving and drains connections.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// WatchClassification reloads the engine's classification registry when
// its file changes. Blocks until ctx is cancelled.
func (s *Server) WatchClassification(ctx context.Context) error {
	w, err := classification.NewWatcher(s.engine.Classification())
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// CheckTool implements the CheckTool RPC.
func (s *Server) CheckTool(ctx context.Context, req *pb.CheckToolRequest) (*pb.CheckToolResponse, error) {
	res, err := s.engine.CheckToolAccess(req.TraceID, req.AgentID, req.ToolID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.CheckToolResponse{
		Decision:       string(res.Effect),
		Authorized:     res.Authorized,
		Reason:         res.Reason,
		Classification: res.Classification,
		TraceID:        res.CorrelationID,
		EventID:        res.EventID,
	}, nil
}

// CheckIntegration implements the CheckIntegration RPC.
func (s *Server) CheckIntegration(ctx context.Context, req *pb.CheckIntegrationRequest) (*pb.CheckIntegrationResponse, error) {
	res, err := s.engine.CheckIntegrationAccess(req.TraceID, req.IntegrationID, req.Target)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.CheckIntegrationResponse{
		Authorized: res.Authorized,
		Found:      res.Found,
		Status:     string(res.Status),
		Reason:     res.Reason,
		TraceID:    res.CorrelationID,
		EventID:    res.EventID,
	}, nil
}

// CheckRevoked implements the CheckRevoked RPC.
func (s *Server) CheckRevoked(ctx context.Context, req *pb.CheckRevokedRequest) (*pb.CheckRevokedResponse, error) {
	res, err := s.engine.CheckSubjectRevoked(req.TraceID, req.SubjectType, req.SubjectID, req.Action)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.CheckRevokedResponse{Revoked: res.Revoked, TraceID: res.CorrelationID, EventID: res.EventID}, nil
}

// Reconstruct implements the Reconstruct RPC.
func (s *Server) Reconstruct(ctx context.Context, req *pb.ReconstructRequest) (*pb.ReconstructResponse, error) {
	rec, err := s.engine.Reconstruct(req.CorrelationID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &pb.ReconstructResponse{
		CorrelationID:     rec.CorrelationID,
		EventCount:        rec.EventCount,
		Workflow:          rec.Workflow,
		Complete:          rec.Complete,
		IntegrityFailures: rec.IntegrityFailures,
		MissingSteps:      rec.MissingSteps,
		Alerts:            rec.Alerts,
	}
	for _, ev := range rec.Events {
		data, err := audit.Encode(ev)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		resp.Events = append(resp.Events, data)
	}
	return resp, nil
}

// toStatus maps the engine error taxonomy onto gRPC codes.
func toStatus(err error) error {
	switch {
	case model.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case model.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, model.ErrIllegalTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
