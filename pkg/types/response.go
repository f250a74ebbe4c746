package types

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape. Reason names the business rule that
// failed; Retryable tells clients a fresh attempt with the same
// Idempotency-Key may succeed.
type APIError struct {
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
