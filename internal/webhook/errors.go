package webhook

import (
	"fmt"
	"net/http"
)

// Kind classifies a rejected webhook request
type Kind string

const (
	KindMethodNotAllowed       Kind = "method_not_allowed"
	KindUnsupportedContentType Kind = "unsupported_content_type"
	KindRateLimited            Kind = "rate_limited"
	KindInvalidBody            Kind = "invalid_body"
	KindPayloadTooLarge        Kind = "payload_too_large"
	KindInvalidSignature       Kind = "invalid_signature"
	KindInvalidPayload         Kind = "invalid_payload"
	KindDuplicate              Kind = "duplicate"
	KindInternal               Kind = "internal"
)

// RejectionError is a webhook request rejected at one stage of the gateway
type RejectionError struct {
	Kind    Kind
	Status  int
	Message string
	Issues  []string
}

func (e *RejectionError) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Issues)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func reject(kind Kind, issues ...string) *RejectionError {
	e := &RejectionError{Kind: kind, Issues: issues}
	switch kind {
	case KindMethodNotAllowed:
		e.Status, e.Message = http.StatusMethodNotAllowed, "Method not allowed"
	case KindUnsupportedContentType:
		e.Status, e.Message = http.StatusUnsupportedMediaType, "Unsupported content type"
	case KindRateLimited:
		e.Status, e.Message = http.StatusTooManyRequests, "Too many requests"
	case KindInvalidBody:
		e.Status, e.Message = http.StatusBadRequest, "Invalid body"
	case KindPayloadTooLarge:
		e.Status, e.Message = http.StatusRequestEntityTooLarge, "Payload too large"
	case KindInvalidSignature:
		e.Status, e.Message = http.StatusForbidden, "Invalid signature"
	case KindInvalidPayload:
		e.Status, e.Message = http.StatusBadRequest, "Invalid payload"
	case KindDuplicate:
		e.Status, e.Message = http.StatusConflict, "Duplicate MessageSid"
	default:
		e.Status, e.Message = http.StatusInternalServerError, "Internal server error"
	}
	return e
}
