package s3

import (
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// wrapErr converts an SDK error into a *provider.ProviderError, keeping the
// HTTP status and the S3 error code for diagnostics.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	pe := &provider.ProviderError{Type: Type, Op: op, Cause: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		pe.StatusCode = respErr.HTTPStatusCode()
		if id := respErr.ServiceRequestID(); id != "" {
			pe.Details = map[string]any{"request_id": id}
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Message = apiErr.ErrorMessage()
		if pe.Details == nil {
			pe.Details = map[string]any{}
		}
		pe.Details["code"] = apiErr.ErrorCode()
	}

	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if pe.StatusCode == 0 && (errors.As(err, &noKey) || errors.As(err, &notFound)) {
		pe.StatusCode = http.StatusNotFound
	}

	return pe
}
