package middleware

import (
	"encoding/json"
	"net/http"

	"marketplace/internal/apperrors"
)

type errorBody struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError renders err as {"error":{code,message,details}}. Internal errors
// only expose the public message.
func WriteError(w http.ResponseWriter, err *apperrors.Error) {
	if err == nil {
		err = apperrors.New(apperrors.CodeInternal, "")
	}
	meta := apperrors.MetadataFor(err.Code())
	body := errorBody{Code: err.Code(), Message: err.Message()}
	if body.Message == "" || err.Code() == apperrors.CodeInternal {
		body.Message = meta.PublicMessage
	}
	if meta.ShowDetails && len(err.Details()) > 0 {
		body.Details = err.Details()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(meta.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]errorBody{"error": body})
}
