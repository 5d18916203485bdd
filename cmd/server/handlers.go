package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/internal"
)

// handleForms handles GET and POST /api/v1/forms
func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeSuccess(w, http.StatusOK, s.store.GetAllForms(r.Context()))
	case http.MethodPost:
		var schema formflow.FormSchema
		if err := readJSONBody(r, &schema); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
			return
		}
		saved, err := s.store.SaveForm(r.Context(), &schema)
		if err != nil {
			writeFormflowError(w, err)
			return
		}
		s.setETag(w, saved)
		writeSuccess(w, http.StatusCreated, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// apiHandler routes /api/v1/forms/{form_id}[/{action}]
func (s *Server) apiHandler(w http.ResponseWriter, r *http.Request) {
	formID, action, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	if formID == "" {
		s.handleForms(w, r)
		return
	}

	switch action {
	case "":
		s.handleForm(w, r, formID)
	case "submissions":
		s.handleSubmissions(w, r, formID)
	case "export":
		s.handleExport(w, r, formID)
	case "export.csv":
		s.handleExportCSV(w, r, formID)
	case "jsonschema":
		s.handleJSONSchema(w, r, formID)
	case "summary":
		s.handleSummary(w, r, formID)
	case "archive":
		s.handleArchive(w, r, formID)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action: %s", action))
	}
}

// handleForm handles GET, PUT and DELETE /api/v1/forms/{form_id}
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request, formID string) {
	switch r.Method {
	case http.MethodGet:
		form, err := s.store.GetForm(r.Context(), formID)
		if err != nil {
			writeFormflowError(w, err)
			return
		}
		etag := s.setETag(w, form)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		writeSuccess(w, http.StatusOK, form)

	case http.MethodPut:
		var schema formflow.FormSchema
		if err := readJSONBody(r, &schema); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
			return
		}
		if schema.ID != "" && schema.ID != formID {
			writeError(w, http.StatusBadRequest, "form id in body does not match path")
			return
		}
		schema.ID = formID

		var saved *formflow.FormSchema
		var err error
		if match, ok := r.Header["If-Match"]; ok {
			version := parseETag(strings.Join(match, ""))
			if version == "*" {
				current, err := s.store.GetForm(r.Context(), formID)
				if err != nil {
					writeJSON(w, http.StatusPreconditionFailed, APIResponse{Error: "form does not exist", Code: formflow.ErrCodeVersionConflict})
					return
				}
				version = s.store.FormVersion(current)
			}
			saved, err = s.store.SaveFormIfMatch(r.Context(), &schema, version)
		} else {
			saved, err = s.store.SaveForm(r.Context(), &schema)
		}
		if err != nil {
			writeFormflowError(w, err)
			return
		}
		s.setETag(w, saved)
		writeSuccess(w, http.StatusOK, saved)

	case http.MethodDelete:
		if err := s.store.DeleteForm(r.Context(), formID); err != nil {
			writeFormflowError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) setETag(w http.ResponseWriter, form *formflow.FormSchema) string {
	etag := `"` + s.store.FormVersion(form) + `"`
	w.Header().Set("ETag", etag)
	return etag
}

// parseETag strips the quotes and weak prefix of an If-Match value. An
// empty value means the form must not exist yet.
func parseETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

// handleSubmissions handles GET and POST /api/v1/forms/{form_id}/submissions
func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request, formID string) {
	switch r.Method {
	case http.MethodGet:
		if _, err := s.store.GetForm(r.Context(), formID); err != nil {
			writeFormflowError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, s.store.GetFormSubmissions(r.Context(), formID))

	case http.MethodPost:
		form, err := s.store.GetForm(r.Context(), formID)
		if err != nil {
			writeFormflowError(w, err)
			return
		}

		var values map[string]any
		if err := readJSONBody(r, &values); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
			return
		}
		if err := internal.ValidateStructure(form, values); err != nil {
			details := map[string]any{}
			if cause := errorsCause(err); cause != "" {
				details["cause"] = cause
			}
			writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
				Error:   "submission does not match the form structure",
				Code:    formflow.ErrCodeValidationFailed,
				Details: details,
			})
			return
		}

		result := s.validator.ValidateSubmission(form, values)
		if !result.Valid {
			writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
				Error:   "validation failed",
				Code:    formflow.ErrCodeValidationFailed,
				Details: map[string]any{"errors": result.Errors},
			})
			return
		}

		saved, err := s.store.SaveSubmission(r.Context(), &formflow.Submission{
			FormID: formID,
			Data:   internal.VisibleValues(form, values),
		})
		if err != nil {
			writeFormflowError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, saved)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func errorsCause(err error) string {
	var ffErr *formflow.FormflowError
	if errors.As(err, &ffErr) && ffErr.Cause != nil {
		return ffErr.Cause.Error()
	}
	return ""
}

// handleExport handles GET /api/v1/forms/{form_id}/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bundle, err := s.store.ExportFormData(r.Context(), formID)
	if err != nil {
		writeFormflowError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-export.json"`, formID))
	writeSuccess(w, http.StatusOK, bundle)
}

// handleExportCSV handles GET /api/v1/forms/{form_id}/export.csv?filename=
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Buffer so that a NO_SUBMISSIONS error can still be sent as JSON.
	var buf strings.Builder
	if err := s.store.ExportCSV(r.Context(), formID, &buf); err != nil {
		writeFormflowError(w, err)
		return
	}

	filename := csvFilename(r.URL.Query().Get("filename"), s.config.Export.DefaultCSVFilename)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, buf.String())
}

// handleJSONSchema handles GET /api/v1/forms/{form_id}/jsonschema
func (s *Server) handleJSONSchema(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	form, err := s.store.GetForm(r.Context(), formID)
	if err != nil {
		writeFormflowError(w, err)
		return
	}
	schema, err := internal.BuildJSONSchema(form)
	if err != nil {
		writeFormflowError(w, formflow.NewInternalError("failed to build json schema", err).WithForm(formID))
		return
	}
	writeSuccess(w, http.StatusOK, schema)
}

// handleSummary handles GET /api/v1/forms/{form_id}/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics is not enabled")
		return
	}
	form, err := s.store.GetForm(r.Context(), formID)
	if err != nil {
		writeFormflowError(w, err)
		return
	}
	summary, err := s.analytics.Summarize(r.Context(), form, s.store.GetFormSubmissions(r.Context(), formID))
	if err != nil {
		writeFormflowError(w, formflow.NewInternalError("failed to summarize submissions", err).WithForm(formID))
		return
	}
	writeSuccess(w, http.StatusOK, summary)
}

// handleArchive handles POST /api/v1/forms/{form_id}/archive
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archive is not enabled")
		return
	}
	result, err := s.archiver.ArchiveForm(r.Context(), s.store, formID)
	if err != nil {
		writeFormflowError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

// handleImport handles POST /api/v1/import
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var bundle formflow.ExportBundle
	if err := readJSONBody(r, &bundle); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	result, err := s.store.ImportFormData(r.Context(), &bundle)
	if err != nil {
		writeFormflowError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleClearData handles DELETE /api/v1/data
func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.ClearAllData(r.Context()); err != nil {
		writeFormflowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
