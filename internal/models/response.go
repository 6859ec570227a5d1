package models

import "time"

// ChatData is the payload of a successful chat reply.
type ChatData struct {
	Response string `json:"response"`
}

// SuccessEnvelope wraps any successful API payload.
type SuccessEnvelope struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ErrorBody is the machine-readable error returned by the JSON API.
type ErrorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorEnvelope wraps an ErrorBody.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Success builds a success envelope stamped with now.
func Success(data interface{}, requestID string) SuccessEnvelope {
	return SuccessEnvelope{Data: data, RequestID: requestID, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

// Failure builds an error envelope stamped with now.
func Failure(message, code, requestID string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
	}}
}
