// Package govtrailv1 defines the GovernanceService gRPC contract. Messages
// are plain structs carried by a JSON codec registered under the "json"
// content subtype.
package govtrailv1

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "govtrail.v1.GovernanceService"

// CodecName is the content subtype clients must select.
const CodecName = "json"

const (
	checkToolMethod        = "/" + ServiceName + "/CheckTool"
	checkIntegrationMethod = "/" + ServiceName + "/CheckIntegration"
	checkRevokedMethod     = "/" + ServiceName + "/CheckRevoked"
	reconstructMethod      = "/" + ServiceName + "/Reconstruct"
)

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec marshals messages as JSON.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (Codec) Name() string                       { return CodecName }

// CheckToolRequest asks whether an agent may invoke a tool.
type CheckToolRequest struct {
	AgentID string `json:"agent_id"`
	ToolID  string `json:"tool_id"`
	TraceID string `json:"trace_id,omitempty"`
}

type CheckToolResponse struct {
	Decision       string `json:"decision"`
	Authorized     bool   `json:"authorized"`
	Reason         string `json:"reason"`
	Classification string `json:"classification,omitempty"`
	TraceID        string `json:"trace_id"`
	EventID        string `json:"event_id,omitempty"`
}

// CheckIntegrationRequest asks whether an integration may reach a target.
type CheckIntegrationRequest struct {
	IntegrationID string `json:"integration_id"`
	Target        string `json:"target"`
	TraceID       string `json:"trace_id,omitempty"`
}

type CheckIntegrationResponse struct {
	Authorized bool   `json:"authorized"`
	Found      bool   `json:"found"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason"`
	TraceID    string `json:"trace_id"`
	EventID    string `json:"event_id,omitempty"`
}

// CheckRevokedRequest asks whether a subject is held by a revocation.
// Action, when set, records the denied attempt.
type CheckRevokedRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Action      string `json:"action,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
}

type CheckRevokedResponse struct {
	Revoked bool   `json:"revoked"`
	TraceID string `json:"trace_id"`
	EventID string `json:"event_id,omitempty"`
}

type ReconstructRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// ReconstructResponse carries the events as raw JSON; decode them with
// audit.Decode.
type ReconstructResponse struct {
	CorrelationID     string            `json:"correlation_id"`
	EventCount        int               `json:"event_count"`
	Workflow          string            `json:"workflow,omitempty"`
	Complete          bool              `json:"complete"`
	IntegrityFailures []string          `json:"integrity_failures"`
	MissingSteps      []string          `json:"missing_steps"`
	Alerts            []string          `json:"alerts"`
	Events            []json.RawMessage `json:"events"`
}

// GovernanceServiceServer is implemented by the server.
type GovernanceServiceServer interface {
	CheckTool(context.Context, *CheckToolRequest) (*CheckToolResponse, error)
	CheckIntegration(context.Context, *CheckIntegrationRequest) (*CheckIntegrationResponse, error)
	CheckRevoked(context.Context, *CheckRevokedRequest) (*CheckRevokedResponse, error)
	Reconstruct(context.Context, *ReconstructRequest) (*ReconstructResponse, error)
}

// RegisterGovernanceServiceServer registers srv on s.
func RegisterGovernanceServiceServer(s grpc.ServiceRegistrar, srv GovernanceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](method string, call func(GovernanceServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GovernanceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GovernanceServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes GovernanceService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GovernanceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckTool", Handler: unary(checkToolMethod, GovernanceServiceServer.CheckTool)},
		{MethodName: "CheckIntegration", Handler: unary(checkIntegrationMethod, GovernanceServiceServer.CheckIntegration)},
		{MethodName: "CheckRevoked", Handler: unary(checkRevokedMethod, GovernanceServiceServer.CheckRevoked)},
		{MethodName: "Reconstruct", Handler: unary(reconstructMethod, GovernanceServiceServer.Reconstruct)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "govtrail/v1/governance",
}

// GovernanceServiceClient is the client stub.
type GovernanceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGovernanceServiceClient wraps a connection. Every call selects the
// JSON codec.
func NewGovernanceServiceClient(cc grpc.ClientConnInterface) *GovernanceServiceClient {
	return &GovernanceServiceClient{cc: cc}
}

func (c *GovernanceServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *GovernanceServiceClient) CheckTool(ctx context.Context, in *CheckToolRequest, opts ...grpc.CallOption) (*CheckToolResponse, error) {
	out := new(CheckToolResponse)
	if err := c.invoke(ctx, checkToolMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GovernanceServiceClient) CheckIntegration(ctx context.Context, in *CheckIntegrationRequest, opts ...grpc.CallOption) (*CheckIntegrationResponse, error) {
	out := new(CheckIntegrationResponse)
	if err := c.invoke(ctx, checkIntegrationMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GovernanceServiceClient) CheckRevoked(ctx context.Context, in *CheckRevokedRequest, opts ...grpc.CallOption) (*CheckRevokedResponse, error) {
	out := new(CheckRevokedResponse)
	if err := c.invoke(ctx, checkRevokedMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GovernanceServiceClient) Reconstruct(ctx context.Context, in *ReconstructRequest, opts ...grpc.CallOption) (*ReconstructResponse, error) {
	out := new(ReconstructResponse)
	if err := c.invoke(ctx, reconstructMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
