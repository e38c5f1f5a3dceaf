package remote

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

func TestClassifyS3Error(t *testing.T) {
	apiErr := &smithy.GenericAPIError{
		Code:    "NoSuchBucket",
		Message: "The specified bucket does not exist",
	}

	got := classifyS3Error(fmt.Errorf("operation failed: %w", apiErr))
	if !strings.Contains(got.Error(), "NoSuchBucket") {
		t.Errorf("api error code lost: %v", got)
	}

	opErr := &smithy.OperationError{
		ServiceID:     "S3",
		OperationName: "PutObject",
		Err:           errors.New("dial tcp: connection refused"),
	}
	got = classifyS3Error(opErr)
	if !strings.Contains(got.Error(), "PutObject") || !strings.Contains(got.Error(), "connection refused") {
		t.Errorf("operation error lost context: %v", got)
	}

	plain := errors.New("something else")
	if got = classifyS3Error(plain); got != plain {
		t.Errorf("plain error should pass through, got %v", got)
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("timeout")
	err := NewTransportError("upload", cause)

	if !errors.Is(err, cause) {
		t.Error("TransportError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "upload") {
		t.Errorf("Error() = %q", err.Error())
	}

	var terr *TransportError
	wrapped := fmt.Errorf("write failed: %w", err)
	if !errors.As(wrapped, &terr) {
		t.Error("errors.As failed through wrapping")
	}
}
