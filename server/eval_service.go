package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/TheBB/Paltry/compiler"
	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/jit"
)

// EvalService implements the EvalService Connect handler.
type EvalService struct {
	worker *Worker
}

// NewEvalService creates an EvalService.
func NewEvalService(worker *Worker) *EvalService {
	return &EvalService{worker: worker}
}

// Evaluate reads, compiles and runs source as one batch and returns the
// rendered value of the last form.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	result, err := s.evaluate(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(wrapperspb.String(result)), nil
}

// Disassemble returns the IR text of a resident unit.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	text, err := s.disassemble(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(wrapperspb.String(text)), nil
}

// evalOutcome carries a session result back from the worker goroutine.
type evalOutcome struct {
	rendered string
	err      error
}

func (s *EvalService) evaluate(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	if err := ctx.Err(); err != nil {
		return "", connect.NewError(connect.CodeCanceled, err)
	}

	result, err := s.worker.Do(func(sess *jit.Session) interface{} {
		v, err := sess.EvalString(source)
		if err != nil {
			return evalOutcome{err: err}
		}
		return evalOutcome{rendered: v.String()}
	})
	if err != nil {
		return "", connect.NewError(connect.CodeInternal, err)
	}
	out := result.(evalOutcome)
	if out.err != nil {
		return "", evalError(out.err)
	}
	return out.rendered, nil
}

func (s *EvalService) disassemble(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unit name is required"))
	}
	cu, ok := s.worker.Session().Unit(name)
	if !ok {
		return "", connect.NewError(connect.CodeNotFound, fmt.Errorf("unit %q not found", name))
	}
	return cu.IR().Format(), nil
}

// evalError maps a session error to a Connect status.
func evalError(err error) *connect.Error {
	var (
		readErr   *compiler.ReadError
		syntaxErr *compiler.SyntaxError
		verifyErr *ir.VerifyError
	)
	switch {
	case errors.As(err, &readErr), errors.As(err, &syntaxErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &verifyErr):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, jit.ErrEvalFailed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
