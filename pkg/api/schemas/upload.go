package schemas

// UploadParamsRequest asks for upload parameters on behalf of a capability
// token. The client declares the file it intends to send.
type UploadParamsRequest struct {
	Token    string `query:"token" required:"true" doc:"Capability token from the upload link"`
	Filename string `query:"filename" required:"true" doc:"Original filename on the client"`
	Size     int64  `query:"size" required:"true" minimum:"1" doc:"Declared file size in bytes"`
}

// UploadParamsResponse carries either a single presigned PUT URL or a
// multipart session, depending on the declared size.
type UploadParamsResponse struct {
	Body struct {
		Method    string `json:"method" doc:"Upload method to use" enum:"put,multipart"`
		Key       string `json:"key" doc:"Derived storage key for the object"`
		URL       string `json:"url,omitempty" doc:"Presigned PUT URL (method=put)"`
		UploadID  string `json:"upload_id,omitempty" doc:"Multipart upload session ID (method=multipart)"`
		PartSize  int64  `json:"part_size,omitempty" doc:"Recommended part size in bytes (method=multipart)"`
		ExpiresIn int    `json:"expires_in" doc:"Seconds the presigned URLs stay valid"`
	}
}

// SignPartRequest asks for a presigned URL for one part of a multipart
// session.
type SignPartRequest struct {
	Token      string `query:"token" required:"true" doc:"Capability token from the upload link"`
	UploadID   string `query:"upload_id" required:"true" doc:"Multipart upload session ID"`
	PartNumber int    `query:"part_number" required:"true" minimum:"1" maximum:"10000" doc:"Part number within the session"`
}

type SignPartResponse struct {
	Body struct {
		URL        string `json:"url" doc:"Presigned URL for uploading this part"`
		PartNumber int    `json:"part_number" doc:"Part number the URL is valid for"`
		ExpiresIn  int    `json:"expires_in" doc:"Seconds the URL stays valid"`
	}
}

// CompletedPart echoes back the identity of a part the client finished
// uploading.
type CompletedPart struct {
	PartNumber int    `json:"part_number" doc:"Part number within the session"`
	ETag       string `json:"etag" doc:"ETag the storage gateway returned for the part"`
}

// CompleteUploadRequest assembles a multipart session into the final object.
type CompleteUploadRequest struct {
	Token string `query:"token" required:"true" doc:"Capability token from the upload link"`
	Body  struct {
		UploadID string          `json:"upload_id" doc:"Multipart upload session ID"`
		Parts    []CompletedPart `json:"parts" doc:"Parts uploaded, in any order"`
	}
}

type CompleteUploadResponse struct {
	Body struct {
		Location string `json:"location" doc:"Bucket-qualified location of the assembled object"`
		Key      string `json:"key" doc:"Storage key of the assembled object"`
	}
}

// AbortUploadRequest discards a multipart session and its uploaded parts.
type AbortUploadRequest struct {
	Token string `query:"token" required:"true" doc:"Capability token from the upload link"`
	Body  struct {
		UploadID string `json:"upload_id" doc:"Multipart upload session ID"`
	}
}

// DownloadURLRequest asks for a download link to an object previously
// uploaded under the same capability token's client/project.
type DownloadURLRequest struct {
	Token    string `query:"token" required:"true" doc:"Capability token from the upload link"`
	Filename string `query:"filename" required:"true" doc:"Filename of the uploaded object"`
}

type DownloadURLResponse struct {
	Body struct {
		URL string `json:"url" doc:"Presigned download URL"`
	}
}

// ProgressRequest reports transfer progress for an in-flight upload.
type ProgressRequest struct {
	Token string `query:"token" required:"true" doc:"Capability token from the upload link"`
	Body  struct {
		UploadID string `json:"upload_id" doc:"Upload identifier the client is reporting on"`
		Filename string `json:"filename" doc:"Original filename on the client"`
		Size     int64  `json:"size" doc:"Total file size in bytes"`
		Offset   int64  `json:"offset" doc:"Bytes transferred so far"`
	}
}
