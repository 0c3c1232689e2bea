package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/schemas"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/services/upload"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/blobstore"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/session"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/storekey"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplink"
	"github.com/danielgtaylor/huma/v2"
)

// Wire-facing messages. Token rejections are deliberately collapsed into
// one message so the response never reveals whether a token existed,
// expired, or ran out of uses. Storage rejections likewise hide backend
// detail from the uploading client.
const (
	msgLinkDenied      = "this upload link is invalid or has expired"
	msgStorageRejected = "upload failed, contact the project owner"
	msgStorageDown     = "storage is temporarily unavailable, try again shortly"
)

// uploadErr maps service errors onto HTTP status codes.
func uploadErr(err error) error {
	switch {
	case uplink.IsDenied(err):
		return huma.Error403Forbidden(msgLinkDenied)
	case errors.Is(err, storekey.ErrInvalidFilename):
		return huma.Error400BadRequest("filename is not acceptable")
	case errors.Is(err, session.ErrInvalidPartNumber):
		return huma.Error400BadRequest("part number out of range")
	case errors.Is(err, session.ErrUnknownSession):
		return huma.Error404NotFound("unknown upload session")
	case errors.Is(err, session.ErrStateConflict):
		return huma.Error409Conflict("upload session does not allow this operation")
	case errors.Is(err, blobstore.ErrNotFound):
		return huma.Error404NotFound("object not found")
	case errors.Is(err, blobstore.ErrRejected):
		return huma.Error502BadGateway(msgStorageRejected)
	case errors.Is(err, blobstore.ErrUnavailable), errors.Is(err, session.ErrStorageTimeout):
		return huma.Error503ServiceUnavailable(msgStorageDown)
	default:
		return huma.Error500InternalServerError("internal error")
	}
}

// AbortUploadOutput carries no body.
type AbortUploadOutput struct{}

// ProgressOutput carries no body; acceptance is signalled by the status.
type ProgressOutput struct{}

// RegisterUpload registers the upload coordination routes.
func RegisterUpload(api huma.API, svc *upload.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-upload-params",
		Method:      http.MethodGet,
		Path:        "/api/upload/params",
		Summary:     "Get upload parameters",
		Description: "Validate the capability token and hand out either a presigned PUT URL or a multipart session for the declared file",
		Tags:        []string{"Upload"},
	}, func(ctx context.Context, input *schemas.UploadParamsRequest) (*schemas.UploadParamsResponse, error) {
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("upload service not configured")
		}

		params, err := svc.Params(ctx, input.Token, input.Filename, input.Size)
		if err != nil {
			return nil, uploadErr(err)
		}

		resp := &schemas.UploadParamsResponse{}
		resp.Body.Method = params.Method
		resp.Body.Key = params.Key.String()
		resp.Body.URL = params.URL
		resp.Body.UploadID = params.UploadID
		resp.Body.PartSize = params.PartSize
		resp.Body.ExpiresIn = params.ExpiresIn
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sign-upload-part",
		Method:      http.MethodGet,
		Path:        "/api/upload/part",
		Summary:     "Sign a multipart part",
		Description: "Get a presigned URL for uploading one part of an open multipart session",
		Tags:        []string{"Upload"},
	}, func(ctx context.Context, input *schemas.SignPartRequest) (*schemas.SignPartResponse, error) {
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("upload service not configured")
		}

		url, err := svc.SignPart(ctx, input.Token, input.UploadID, input.PartNumber)
		if err != nil {
			return nil, uploadErr(err)
		}

		resp := &schemas.SignPartResponse{}
		resp.Body.URL = url
		resp.Body.PartNumber = input.PartNumber
		resp.Body.ExpiresIn = int(session.DefaultSignExpiry.Seconds())
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-upload",
		Method:      http.MethodPost,
		Path:        "/api/upload/complete",
		Summary:     "Complete a multipart upload",
		Description: "Assemble the uploaded parts into the final object",
		Tags:        []string{"Upload"},
	}, func(ctx context.Context, input *schemas.CompleteUploadRequest) (*schemas.CompleteUploadResponse, error) {
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("upload service not configured")
		}

		parts := make([]blobstore.Part, 0, len(input.Body.Parts))
		for _, p := range input.Body.Parts {
			parts = append(parts, blobstore.Part{PartNumber: p.PartNumber, ETag: p.ETag})
		}

		location, key, err := svc.Complete(ctx, input.Token, input.Body.UploadID, parts)
		if err != nil {
			return nil, uploadErr(err)
		}

		resp := &schemas.CompleteUploadResponse{}
		resp.Body.Location = location
		resp.Body.Key = key.String()
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "abort-upload",
		Method:        http.MethodPost,
		Path:          "/api/upload/abort",
		Summary:       "Abort a multipart upload",
		Description:   "Discard an open multipart session and its stored parts",
		Tags:          []string{"Upload"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *schemas.AbortUploadRequest) (*AbortUploadOutput, error) {
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("upload service not configured")
		}

		if err := svc.Abort(ctx, input.Token, input.Body.UploadID); err != nil {
			return nil, uploadErr(err)
		}
		return &AbortUploadOutput{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-download-url",
		Method:      http.MethodGet,
		Path:        "/api/upload/download",
		Summary:     "Get a download link",
		Description: "Get a presigned download URL for an object uploaded under the same link's client and project",
		Tags:        []string{"Upload"},
	}, func(ctx context.Context, input *schemas.DownloadURLRequest) (*schemas.DownloadURLResponse, error) {
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("upload service not configured")
		}

		url, err := svc.DownloadURL(ctx, input.Token, input.Filename)
		if err != nil {
			return nil, uploadErr(err)
		}

		resp := &schemas.DownloadURLResponse{}
		resp.Body.URL = url
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "report-upload-progress",
		Method:        http.MethodPost,
		Path:          "/api/upload/progress",
		Summary:       "Report upload progress",
		Description:   "Feed a raw progress sample into the throttled notification pipeline",
		Tags:          []string{"Upload"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *schemas.ProgressRequest) (*ProgressOutput, error) {
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("upload service not configured")
		}

		err := svc.Progress(ctx, input.Token, input.Body.UploadID, input.Body.Filename, input.Body.Size, input.Body.Offset)
		if err != nil {
			return nil, uploadErr(err)
		}
		return &ProgressOutput{}, nil
	})
}
