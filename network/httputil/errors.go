// Package httputil holds shared helpers for the node's JSON HTTP surfaces.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "httputil")

// DefaultErrorJson is a JSON representation of a simple error value,
// containing only a message and an error code.
type DefaultErrorJson struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteError writes the error by manipulating headers and the body of the
// final response.
func WriteError(w http.ResponseWriter, errJson *DefaultErrorJson) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errJson.Code)
	if err := json.NewEncoder(w).Encode(errJson); err != nil {
		log.WithError(err).Error("Could not write error message")
	}
}

// HandleError writes a JSON error with the given message and code.
func HandleError(w http.ResponseWriter, message string, code int) {
	errJson := &DefaultErrorJson{
		Message: message,
		Code:    code,
	}
	WriteError(w, errJson)
}
