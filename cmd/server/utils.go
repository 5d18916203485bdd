package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/lychee-technology/formflow"
	"go.uber.org/zap"
)

// parsePath parses /api/v1/forms/{form_id} or /api/v1/forms/{form_id}/{action}
func parsePath(path string) (formID string, action string, err error) {
	path = strings.TrimPrefix(path, "/api/v1/forms")
	path = strings.Trim(path, "/")

	if path == "" {
		return "", "", nil
	}

	parts := strings.Split(path, "/")

	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid path format")
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid path format")
	}
}

// csvFilename returns a download name ending in .csv, falling back to def.
func csvFilename(requested, def string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = def
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n':
			return '_'
		}
		return r
	}, name)
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name
}

// APIResponse is the standard response format
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, data)
}

// writeFormflowError maps err to a status code and writes it with its code.
func writeFormflowError(w http.ResponseWriter, err error) error {
	var ffErr *formflow.FormflowError
	if !errors.As(err, &ffErr) {
		zap.S().Errorw("unexpected handler error", "error", err)
		return writeError(w, http.StatusInternalServerError, "internal error")
	}

	status := statusFor(ffErr)
	if status >= http.StatusInternalServerError {
		zap.S().Errorw("request failed", "code", ffErr.Code, "formId", ffErr.FormID, "error", err)
	}
	details := ffErr.Details
	if len(details) == 0 {
		details = nil
	}
	return writeJSON(w, status, APIResponse{
		Success: false,
		Error:   ffErr.Message,
		Code:    ffErr.Code,
		Details: details,
	})
}

func statusFor(err *formflow.FormflowError) int {
	switch err.Code {
	case formflow.ErrCodeVersionConflict:
		return http.StatusPreconditionFailed
	case formflow.ErrCodeNoSubmissions:
		return http.StatusNotFound
	case formflow.ErrCodeBadgeLayout:
		return http.StatusBadRequest
	}

	switch err.Type {
	case formflow.ErrorTypeValidation, formflow.ErrorTypeImport:
		return http.StatusBadRequest
	case formflow.ErrorTypeNotFound:
		return http.StatusNotFound
	case formflow.ErrorTypeConflict:
		return http.StatusConflict
	case formflow.ErrorTypeExport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
