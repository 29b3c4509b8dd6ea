package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// EvalServiceName is the fully-qualified name of the eval service.
const EvalServiceName = "paltry.v1.EvalService"

// Procedure paths of the eval service. Requests and responses are the
// well-known StringValue wrapper, so the service needs no generated
// message types.
const (
	EvalServiceEvaluateProcedure    = "/" + EvalServiceName + "/Evaluate"
	EvalServiceDisassembleProcedure = "/" + EvalServiceName + "/Disassemble"
)

// EvalServiceHandler is implemented by servers of the eval service.
type EvalServiceHandler interface {
	Evaluate(context.Context, *connect.Request[wrapperspb.StringValue]) (*connect.Response[wrapperspb.StringValue], error)
	Disassemble(context.Context, *connect.Request[wrapperspb.StringValue]) (*connect.Response[wrapperspb.StringValue], error)
}

// NewEvalServiceHandler builds an HTTP handler serving svc over the
// Connect, gRPC and gRPC-Web protocols. It returns the path to mount the
// handler on.
func NewEvalServiceHandler(svc EvalServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	evaluate := connect.NewUnaryHandler(EvalServiceEvaluateProcedure, svc.Evaluate, opts...)
	disassemble := connect.NewUnaryHandler(EvalServiceDisassembleProcedure, svc.Disassemble, opts...)
	return "/" + EvalServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EvalServiceEvaluateProcedure:
			evaluate.ServeHTTP(w, r)
		case EvalServiceDisassembleProcedure:
			disassemble.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// EvalServiceClient calls the eval service.
type EvalServiceClient struct {
	evaluate    *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	disassemble *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
}

// NewEvalServiceClient creates a client for the eval service at baseURL.
func NewEvalServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EvalServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &EvalServiceClient{
		evaluate:    connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](httpClient, baseURL+EvalServiceEvaluateProcedure, opts...),
		disassemble: connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](httpClient, baseURL+EvalServiceDisassembleProcedure, opts...),
	}
}

// Evaluate evaluates source and returns the rendered result.
func (c *EvalServiceClient) Evaluate(ctx context.Context, source string) (string, error) {
	resp, err := c.evaluate.CallUnary(ctx, connect.NewRequest(wrapperspb.String(source)))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}

// Disassemble returns the IR text of a resident unit.
func (c *EvalServiceClient) Disassemble(ctx context.Context, unit string) (string, error) {
	resp, err := c.disassemble.CallUnary(ctx, connect.NewRequest(wrapperspb.String(unit)))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}
