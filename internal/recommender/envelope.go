package recommender

import (
	"encoding/json"

	apperrors "opportunity-recommender/internal/common/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the response shape shared by every transport. A success
// carries status, count and data (never null); an error carries status and
// message only, plus the error code and request id. Err is never serialized.
type Envelope[T any] struct {
	Status    string
	Count     int
	Data      []T
	Message   string
	Code      string
	RequestID string
	Err       *apperrors.StandardError
}

func successEnvelope[T any](data []T, requestID string) Envelope[T] {
	if data == nil {
		data = []T{}
	}
	return Envelope[T]{Status: StatusSuccess, Count: len(data), Data: data, RequestID: requestID}
}

// ErrorEnvelope converts err into an error envelope.
func ErrorEnvelope[T any](err error, requestID string) Envelope[T] {
	stdErr := apperrors.AsStandardError(err)
	return Envelope[T]{
		Status:    StatusError,
		Message:   stdErr.Error(),
		Code:      string(stdErr.Code),
		RequestID: requestID,
		Err:       stdErr,
	}
}

func (e Envelope[T]) MarshalJSON() ([]byte, error) {
	if e.Status == StatusError {
		return json.Marshal(struct {
			Status    string `json:"status"`
			Message   string `json:"message"`
			Code      string `json:"code,omitempty"`
			RequestID string `json:"request_id,omitempty"`
		}{e.Status, e.Message, e.Code, e.RequestID})
	}

	data := e.Data
	if data == nil {
		data = []T{}
	}
	return json.Marshal(struct {
		Status    string `json:"status"`
		Count     int    `json:"count"`
		Data      []T    `json:"data"`
		RequestID string `json:"request_id,omitempty"`
	}{e.Status, e.Count, data, e.RequestID})
}
