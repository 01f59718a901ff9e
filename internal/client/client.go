package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/ppiankov/govtrail/api/govtrail/v1"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/model"
)

// callTimeout bounds every RPC.
const callTimeout = 5 * time.Second

// Client connects to a govtrail gRPC governance server.
type Client struct {
	conn   *grpc.ClientConn
	client *pb.GovernanceServiceClient
}

// New creates a gRPC client connected to the given address.
// Fail-closed: if the server cannot be reached, checks deny.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to governance server: %w", err)
	}
	return &Client{
		conn:   conn,
		client: pb.NewGovernanceServiceClient(conn),
	}, nil
}

// CheckTool asks whether agentID may invoke toolID.
// Fail-closed: returns a deny on any RPC error.
func (c *Client) CheckTool(agentID, toolID, traceID string) *pb.CheckToolResponse {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	resp, err := c.client.CheckTool(ctx, &pb.CheckToolRequest{AgentID: agentID, ToolID: toolID, TraceID: traceID})
	if err != nil {
		return &pb.CheckToolResponse{
			Decision: string(model.Deny),
			Reason:   fmt.Sprintf("governance server unreachable: %v", err),
			TraceID:  traceID,
		}
	}
	return resp
}

// CheckIntegration asks whether integrationID may reach target.
// Fail-closed: returns unauthorized on any RPC error.
func (c *Client) CheckIntegration(integrationID, target, traceID string) *pb.CheckIntegrationResponse {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	resp, err := c.client.CheckIntegration(ctx, &pb.CheckIntegrationRequest{IntegrationID: integrationID, Target: target, TraceID: traceID})
	if err != nil {
		return &pb.CheckIntegrationResponse{
			Reason:  fmt.Sprintf("governance server unreachable: %v", err),
			TraceID: traceID,
		}
	}
	return resp
}

// CheckRevoked asks whether a subject is revoked.
// Fail-closed: an unreachable server reports the subject as revoked.
func (c *Client) CheckRevoked(subjectType, subjectID, action, traceID string) *pb.CheckRevokedResponse {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	resp, err := c.client.CheckRevoked(ctx, &pb.CheckRevokedRequest{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
		TraceID:     traceID,
	})
	if err != nil {
		return &pb.CheckRevokedResponse{Revoked: true, TraceID: traceID}
	}
	return resp
}

// Reconstruct fetches the chain for correlationID and decodes its events.
func (c *Client) Reconstruct(correlationID string) (*pb.ReconstructResponse, []audit.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	resp, err := c.client.Reconstruct(ctx, &pb.ReconstructRequest{CorrelationID: correlationID})
	if err != nil {
		return nil, nil, err
	}
	events := make([]audit.Event, 0, len(resp.Events))
	for i, raw := range resp.Events {
		ev, err := audit.Decode(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return resp, events, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
