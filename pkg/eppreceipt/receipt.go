// Package eppreceipt implements the Receipt tagged union (C8): the typed
// accept/reject outcome of an admission attempt, per spec §4.8.
package eppreceipt

// Code is one of the ten closed, wire-stable rejection codes.
type Code string

const (
	InvalidFormat      Code = "INVALID_FORMAT"
	UnsupportedVersion Code = "UNSUPPORTED_VERSION"
	WrongRecipient     Code = "WRONG_RECIPIENT"
	Expired            Code = "EXPIRED"
	InvalidSignature   Code = "INVALID_SIGNATURE"
	ReplayDetected     Code = "REPLAY_DETECTED"
	UntrustedSender    Code = "UNTRUSTED_SENDER"
	PolicyDenied       Code = "POLICY_DENIED"
	SizeExceeded       Code = "SIZE_EXCEEDED"
	RateLimited        Code = "RATE_LIMITED"
)

// HTTPStatus maps a rejection code to the status the HTTP adapter must
// return (spec §6).
func (c Code) HTTPStatus() int {
	switch c {
	case InvalidFormat, UnsupportedVersion, WrongRecipient, Expired, ReplayDetected, SizeExceeded:
		return 400
	case InvalidSignature:
		return 401
	case UntrustedSender, PolicyDenied:
		return 403
	case RateLimited:
		return 429
	default:
		return 500
	}
}

// ErrorDetail is the nested error object of a rejected receipt.
type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Receipt is the wire form emitted for every admission attempt. Exactly
// one of the accepted-only or rejected-only fields is populated, selected
// by Status.
type Receipt struct {
	Status     string       `json:"status"` // "accepted" | "rejected"
	EnvelopeID string       `json:"envelope_id"`
	ReceivedAt string       `json:"received_at"`

	// Accepted-only fields.
	ReceiptID string `json:"receipt_id,omitempty"`
	Executor  string `json:"executor,omitempty"`

	// Rejected-only field.
	Error *ErrorDetail `json:"error,omitempty"`
}

// UnknownEnvelopeID is used when the envelope could not be parsed at all
// (spec §4.8: "unknown" literal).
const UnknownEnvelopeID = "unknown"

// Accepted builds a SuccessReceipt.
func Accepted(envelopeID, receivedAt, receiptID, executor string) Receipt {
	return Receipt{
		Status:     "accepted",
		EnvelopeID: envelopeID,
		ReceivedAt: receivedAt,
		ReceiptID:  receiptID,
		Executor:   executor,
	}
}

// Rejected builds an ErrorReceipt.
func Rejected(envelopeID, receivedAt string, code Code, message string) Receipt {
	return Receipt{
		Status:     "rejected",
		EnvelopeID: envelopeID,
		ReceivedAt: receivedAt,
		Error:      &ErrorDetail{Code: code, Message: message},
	}
}

// IsAccepted reports whether the receipt represents a successful admission.
func (r Receipt) IsAccepted() bool {
	return r.Status == "accepted"
}
