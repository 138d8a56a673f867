package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// BoundingBox is a face rectangle in frame pixel coordinates
type BoundingBox struct {
	X      int `json:"x" example:"120"`
	Y      int `json:"y" example:"80"`
	Width  int `json:"width" example:"96"`
	Height int `json:"height" example:"96"`
}

// IdentificationResult describes one detected face
type IdentificationResult struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	IdentityID  string      `json:"identity_id" example:"alice"`
	Distance    *float64    `json:"distance" example:"0.21"`
	Confidence  float64     `json:"confidence" example:"75.0"`
}

// IdentifyResponse represents the response for face identification
type IdentifyResponse struct {
	Faces []IdentificationResult `json:"faces"`
	Best  *IdentificationResult  `json:"best"`
}

// AttendanceRecordResponse represents a created attendance record
type AttendanceRecordResponse struct {
	ID         string  `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SubjectID  string  `json:"subject_id" example:"alice"`
	Date       string  `json:"date" example:"2024-01-01"`
	TimeIn     string  `json:"time_in" example:"2024-01-01T08:02:11Z"`
	Status     string  `json:"status" example:"present"`
	Method     string  `json:"method" example:"face"`
	Confidence float64 `json:"confidence" example:"82.5"`
	CreatedAt  string  `json:"created_at" example:"2024-01-01T08:02:11Z"`
}

// KnownIdentity is one registry entry
type KnownIdentity struct {
	IdentityID string `json:"identity_id" example:"alice"`
	Source     string `json:"source" example:"alice.jpg"`
}

// ListIdentitiesResponse represents the registry listing
type ListIdentitiesResponse struct {
	Identities []KnownIdentity `json:"identities"`
	Total      int             `json:"total" example:"12"`
}

// SkippedFile is a reference image that did not produce an identity
type SkippedFile struct {
	File   string `json:"file" example:"group.jpg"`
	Reason string `json:"reason" example:"no face detected"`
}

// ReloadResponse represents the result of a registry reload
type ReloadResponse struct {
	Loaded     int           `json:"loaded" example:"12"`
	Skipped    []SkippedFile `json:"skipped"`
	ImageFiles int           `json:"image_files" example:"13"`
	DurationMs int64         `json:"duration_ms" example:"840"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code      string `json:"code" example:"VALIDATION_FAILED"`
	Message   string `json:"message" example:"Request validation failed"`
	RequestID string `json:"request_id,omitempty" example:"3f2c8e0a-6f4b-4d0e-9b1a-2c5d7e9f1a3b"`
}

func subjectHeader() *parameter.Parameter {
	return parameter.StrParam("X-Subject-ID", parameter.Header,
		parameter.WithRequired(),
		parameter.WithDescription("Subject identifier set by the upstream auth layer"))
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Rollcall API",
		Version:     "v1.0.0",
		Description: "Face identification engine that gates daily attendance and streams an annotated camera feed",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// Recognition endpoints

		// POST /v1/identify - Identify faces
		endpoint.New(
			endpoint.POST,
			"/identify",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("Identify faces in an image"),
			endpoint.WithDescription("Runs detection and matching against the known-identity registry. Every detected face is returned, unmatched faces carry identity_id \"unknown\"."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentifyResponse{}, "200", "Identification completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RECOGNITION_UNAVAILABLE", Message: "Face recognition service unavailable"}, "503", "Service Unavailable"),
			}),
		),

		// GET /v1/stream - Annotated MJPEG stream
		endpoint.New(
			endpoint.GET,
			"/stream",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("Live annotated camera stream"),
			endpoint.WithDescription("multipart/x-mixed-replace; boundary=frame. Emits one placeholder frame and ends when the camera is unavailable. Only one stream may hold the camera at a time."),
			endpoint.WithProduce([]mime.MIME{mime.MIME("multipart/x-mixed-replace")}),
			endpoint.WithParams(subjectHeader()),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Missing subject identity"}, "401", "Unauthorized"),
				response.New(ErrorResponse{Code: "CAMERA_BUSY", Message: "Camera is in use by another stream"}, "409", "Conflict"),
			}),
		),

		// Attendance endpoints

		// POST /v1/attendance/mark - Mark attendance
		endpoint.New(
			endpoint.POST,
			"/attendance/mark",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Mark attendance for the calling subject"),
			endpoint.WithDescription("Creates today's attendance record when the identified face belongs to the subject with enough confidence. The image is optional; without it the subject's latest stream identification is used."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(subjectHeader()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AttendanceRecordResponse{}, "201", "Attendance marked"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Missing subject identity"}, "401", "Unauthorized"),
				response.New(ErrorResponse{Code: "IDENTITY_MISMATCH", Message: "Detected face does not match the requesting subject"}, "403", "Forbidden"),
				response.New(ErrorResponse{Code: "ALREADY_MARKED", Message: "Attendance already marked for today"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "LOW_CONFIDENCE", Message: "Identification confidence below the acceptance threshold"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "NO_RECENT_IDENTIFICATION", Message: "No recent identification for this subject, provide an image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "422", "Unprocessable Entity"),
			}),
		),

		// Registry endpoints

		// GET /v1/registry - List identities
		endpoint.New(
			endpoint.GET,
			"/registry",
			endpoint.WithTags("Registry"),
			endpoint.WithSummary("List known identities"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ListIdentitiesResponse{}, "200", "Current registry snapshot"),
			}),
		),

		// POST /v1/registry/reload - Reload registry
		endpoint.New(
			endpoint.POST,
			"/registry/reload",
			endpoint.WithTags("Registry"),
			endpoint.WithSummary("Reload known faces"),
			endpoint.WithDescription("Rebuilds the registry from the known faces directory and swaps it in atomically. On failure the previous registry keeps serving."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReloadResponse{}, "200", "Registry reloaded"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "REGISTRY_UNAVAILABLE", Message: "Known faces directory could not be loaded"}, "503", "Service Unavailable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
