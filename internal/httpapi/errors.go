package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"memwatchd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload with a stable
// machine-readable code.
func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: code})
}

var requestValidator = validator.New()

// validateAlertRequest applies the struct-tag validation rules on the custom
// alert body.
func validateAlertRequest(req types.CreateAlertRequest) error {
	return requestValidator.Struct(req)
}
