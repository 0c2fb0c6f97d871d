package prometheus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang/gddo/httputil"
)

const (
	contentTypePlainText = "text/plain"
	contentTypeJSON      = "application/json"
)

// apiResponse is a container for handler output.
type apiResponse struct {
	// Err is protocol error, if any.
	Err string `json:"error"`

	// Data is response output, if any.
	Data interface{} `json:"data"`
}

// negotiateContentType parses the "Accept:" header and returns the preferred
// content type string, defaulting to plain text.
func negotiateContentType(r *http.Request) string {
	contentTypes := []string{
		contentTypePlainText,
		contentTypeJSON,
	}
	return httputil.NegotiateContentType(r, contentTypes, contentTypePlainText)
}

// writeResponse renders the response body in the negotiated content type.
// The caller writes the status code and headers first.
func writeResponse(w http.ResponseWriter, r *http.Request, response apiResponse) error {
	switch negotiateContentType(r) {
	case contentTypeJSON:
		return json.NewEncoder(w).Encode(response)
	default:
		buf, ok := response.Data.(bytes.Buffer)
		if !ok {
			return fmt.Errorf("unexpected data: %v", response.Data)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("could not write response body: %w", err)
		}
	}
	return nil
}
