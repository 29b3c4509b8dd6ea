package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"

	"github.com/TheBB/Paltry/jit"
)

var log = commonlog.GetLogger("paltry.server")

// PaltryServer is the eval server wrapping a running session.
// It serves Connect (HTTP/JSON) and gRPC on the HTTP listener, and
// optionally native gRPC on a separate listener.
type PaltryServer struct {
	worker *Worker
	eval   *EvalService
	mux    *http.ServeMux
	grpc   *grpc.Server
}

// New creates a PaltryServer wrapping the given session.
func New(s *jit.Session) *PaltryServer {
	worker := NewWorker(s)
	eval := NewEvalService(worker)

	srv := &PaltryServer{
		worker: worker,
		eval:   eval,
		mux:    http.NewServeMux(),
		grpc:   grpc.NewServer(grpc.UnaryInterceptor(grpcLogger)),
	}

	// Register Connect/gRPC service handlers
	evalPath, evalHandler := NewEvalServiceHandler(eval, connect.WithInterceptors(connectLogger()))
	srv.mux.Handle(evalPath, evalHandler)

	RegisterEvalServiceServer(srv.grpc, grpcEvalService{svc: eval})

	return srv
}

// Handler returns the HTTP handler serving the Connect endpoints.
func (s *PaltryServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *PaltryServer) ListenAndServe(addr string) error {
	fmt.Printf("Paltry eval server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, EvalServiceEvaluateProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// ServeGRPC serves native gRPC on lis until Stop is called.
func (s *PaltryServer) ServeGRPC(lis net.Listener) error {
	fmt.Printf("  gRPC (binary):       grpc://%s\n", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop shuts down the server.
func (s *PaltryServer) Stop() {
	s.grpc.Stop()
	s.worker.Stop()
}

func connectLogger() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			logRequest(req.Spec().Procedure, start, err)
			return resp, err
		}
	}
}

func grpcLogger(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logRequest(info.FullMethod, start, err)
	return resp, err
}

func logRequest(procedure string, start time.Time, err error) {
	if err != nil {
		log.Infof("%s failed after %s: %s", procedure, time.Since(start), err)
		return
	}
	log.Debugf("%s done in %s", procedure, time.Since(start))
}
