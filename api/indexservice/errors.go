package indexservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain scopes the ErrorInfo reasons attached to failed calls.
const errorDomain = "idxtree"

// errBadRequest marks malformed request fields.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// wireErrors pairs each sentinel with its status code and the reason that
// identifies it on the wire. Several sentinels share InvalidArgument, so the
// reason is what tells them apart on the client.
var wireErrors = []struct {
	err    error
	code   codes.Code
	reason string
}{
	{indexmanager.ErrIndexNotFound, codes.NotFound, "INDEX_NOT_FOUND"},
	{indexmanager.ErrIndexExists, codes.AlreadyExists, "INDEX_EXISTS"},
	{indexmanager.ErrInvalidIndexName, codes.InvalidArgument, "INVALID_INDEX_NAME"},
	{idxtree.ErrInvalidConfiguration, codes.InvalidArgument, "INVALID_CONFIGURATION"},
	{idxtree.ErrKeySize, codes.InvalidArgument, "KEY_SIZE"},
	{idxtree.ErrIndexCorruption, codes.DataLoss, "INDEX_CORRUPTION"},
	{idxtree.ErrTreeDestroyed, codes.FailedPrecondition, "TREE_DESTROYED"},
	{errBadRequest, codes.InvalidArgument, "BAD_REQUEST"},
}

// toStatus maps index errors onto gRPC status codes, with an ErrorInfo
// detail naming the sentinel.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, reason := codes.Internal, ""
	for _, w := range wireErrors {
		if errors.Is(err, w.err) {
			code, reason = w.code, w.reason
			break
		}
	}
	if reason == "" {
		switch {
		case errors.Is(err, context.Canceled):
			code = codes.Canceled
		case errors.Is(err, context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		}
		return status.Error(code, err.Error())
	}
	st := status.New(code, err.Error())
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); derr == nil {
		st = detailed
	}
	return st.Err()
}

// remoteError is a failed call whose status named a known sentinel. It
// matches the sentinel with errors.Is and keeps its gRPC status.
type remoteError struct {
	sentinel error
	st       *status.Status
}

func (e *remoteError) Error() string              { return e.st.Message() }
func (e *remoteError) Unwrap() error              { return e.sentinel }
func (e *remoteError) GRPCStatus() *status.Status { return e.st }

// fromStatus turns a status returned by the service back into the matching
// sentinel so clients can use errors.Is.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		for _, w := range wireErrors {
			if w.reason == info.GetReason() && w.err != errBadRequest {
				return &remoteError{sentinel: w.err, st: st}
			}
		}
	}
	return err
}
