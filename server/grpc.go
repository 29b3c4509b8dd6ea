package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// EvalServiceServer is the native gRPC form of the eval service.
type EvalServiceServer interface {
	Evaluate(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Disassemble(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// EvalServiceDesc describes the eval service to a grpc.Server.
var EvalServiceDesc = grpc.ServiceDesc{
	ServiceName: EvalServiceName,
	HandlerType: (*EvalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Disassemble", Handler: disassembleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paltry/v1/eval.proto",
}

// RegisterEvalServiceServer registers srv with a gRPC server.
func RegisterEvalServiceServer(r grpc.ServiceRegistrar, srv EvalServiceServer) {
	r.RegisterService(&EvalServiceDesc, srv)
}

func evaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvalServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvalServiceEvaluateProcedure}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EvalServiceServer).Evaluate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func disassembleHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvalServiceServer).Disassemble(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvalServiceDisassembleProcedure}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EvalServiceServer).Disassemble(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// grpcEvalService adapts EvalService to EvalServiceServer.
type grpcEvalService struct {
	svc *EvalService
}

func (g grpcEvalService) Evaluate(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	out, err := g.svc.evaluate(ctx, in.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.String(out), nil
}

func (g grpcEvalService) Disassemble(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	out, err := g.svc.disassemble(ctx, in.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.String(out), nil
}

// grpcError converts a Connect error to a gRPC status. The two share their
// code numbering.
func grpcError(err error) error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return status.Error(codes.Code(ce.Code()), ce.Message())
	}
	return status.Error(codes.Internal, err.Error())
}

// EvalCaller invokes the eval service over a gRPC client connection.
type EvalCaller struct {
	cc grpc.ClientConnInterface
}

// NewEvalCaller wraps a gRPC client connection.
func NewEvalCaller(cc grpc.ClientConnInterface) *EvalCaller {
	return &EvalCaller{cc: cc}
}

// Evaluate evaluates source and returns the rendered result.
func (c *EvalCaller) Evaluate(ctx context.Context, source string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, EvalServiceEvaluateProcedure, wrapperspb.String(source), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Disassemble returns the IR text of a resident unit.
func (c *EvalCaller) Disassemble(ctx context.Context, unit string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, EvalServiceDisassembleProcedure, wrapperspb.String(unit), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
