// Machine-readable error codes carried in every error envelope (see fail()
// in response.go). Dashboard clients branch on the code, not the message.
//
// Codes are lowercase snake_case. The first block mirrors plain HTTP status
// semantics; the second covers failures a status alone cannot express, such
// as a webhook body that carries a bad signature versus one that is
// unparseable:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_signature",
//	  "message": "webhook signature verification failed"
//	}

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeInvalidPayload   = "invalid_payload"
	ErrCodeRefreshFailed    = "refresh_failed"
	ErrCodeExportFailed     = "export_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
