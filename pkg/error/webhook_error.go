package error

import "net/http"

// WebhookError covers signature mismatches and malformed inbound envelopes.
type WebhookError string

func (err WebhookError) Error() string {
	return string(err)
}

func (err WebhookError) ErrCode() string {
	return "WEBHOOK_ERROR"
}

func (err WebhookError) StatusCode() int {
	return http.StatusBadRequest
}
