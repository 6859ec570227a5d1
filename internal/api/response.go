package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
)

// Pre-marshaled fallback so a marshalling failure still yields valid JSON.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Failure("An unexpected error occurred", pipeline.CodeInternal, ""))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeSuccess writes data inside the success envelope.
func writeSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJSONResponse(w, http.StatusOK, models.Success(data, requestIDFrom(r.Context())))
}

// writeError writes err inside the error envelope, using its status and code
// when it is an *pipeline.APIError and a generic 500 otherwise.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := pipeline.AsAPIError(err)
	writeJSONResponse(w, apiErr.Status, models.Failure(apiErr.Message, apiErr.Code, requestIDFrom(r.Context())))
}
