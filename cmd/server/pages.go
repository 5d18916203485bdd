package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/internal"
	"go.uber.org/zap"
)

// handleFormPage handles GET and POST /forms/{form_id}
func (s *Server) handleFormPage(w http.ResponseWriter, r *http.Request) {
	formID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/forms/"), "/")
	if formID == "" || strings.Contains(formID, "/") {
		http.NotFound(w, r)
		return
	}

	form, err := s.store.GetForm(r.Context(), formID)
	if err != nil {
		if formflow.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		zap.S().Errorw("failed to load form page", "formId", formID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.renderPage(w, http.StatusOK, internal.NewFormSession(form, s.validator, nil))

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, fmt.Sprintf("invalid form body: %v", err), http.StatusBadRequest)
			return
		}
		session := internal.NewFormSession(form, s.validator, internal.ValuesFromForm(form, r.PostForm))
		result, err := session.Submit(r.Context(), func(ctx context.Context, values map[string]any) error {
			_, err := s.store.SaveSubmission(ctx, &formflow.Submission{FormID: formID, Data: values})
			return err
		})
		if err != nil {
			status := http.StatusInternalServerError
			var ffErr *formflow.FormflowError
			if errors.As(err, &ffErr) {
				status = statusFor(ffErr)
			}
			if status >= http.StatusInternalServerError {
				zap.S().Errorw("form page submission failed", "formId", formID, "error", err)
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		status := http.StatusOK
		if !result.Valid {
			status = http.StatusUnprocessableEntity
		}
		s.renderPage(w, status, session)

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderPage(w http.ResponseWriter, status int, session *internal.FormSession) {
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, session); err != nil {
		zap.S().Errorw("failed to render form", "formId", session.Schema().ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// handleBadgeLayout handles POST /api/v1/badges/layout
func (s *Server) handleBadgeLayout(w http.ResponseWriter, r *http.Request) {
	layout, ok := s.composeBadge(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, layout)
}

// handleBadgeSVG handles POST /api/v1/badges/svg
func (s *Server) handleBadgeSVG(w http.ResponseWriter, r *http.Request) {
	layout, ok := s.composeBadge(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := internal.RenderSVG(&buf, layout); err != nil {
		writeFormflowError(w, formflow.NewInternalError("failed to render badge", err))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Badge-Warnings", strconv.Itoa(len(layout.Warnings)))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// composeBadge decodes a BadgeRequest and composes it. With ?form= and
// ?submission= query parameters the attendee data is read from that stored
// submission instead of the request body.
func (s *Server) composeBadge(w http.ResponseWriter, r *http.Request) (*formflow.BadgeLayout, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}

	var req formflow.BadgeRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return nil, false
	}

	if formID := r.URL.Query().Get("form"); formID != "" {
		data, err := s.submissionData(r.Context(), formID, r.URL.Query().Get("submission"))
		if err != nil {
			writeFormflowError(w, err)
			return nil, false
		}
		req.Data = data
	}

	layout, err := s.composer.Compose(req.Template, req.Data)
	if err != nil {
		writeFormflowError(w, err)
		return nil, false
	}
	return layout, true
}

func (s *Server) submissionData(ctx context.Context, formID, submissionID string) (map[string]any, error) {
	if _, err := s.store.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	for _, sub := range s.store.GetFormSubmissions(ctx, formID) {
		if sub.ID != submissionID {
			continue
		}
		data := make(map[string]any, len(sub.Data)+1)
		for k, v := range sub.Data {
			data[k] = v
		}
		if _, ok := data["id"]; !ok {
			data["id"] = sub.ID
		}
		return data, nil
	}
	return nil, formflow.NewFormflowError(formflow.ErrorTypeNotFound, formflow.ErrCodeSubmissionNotFound, "submission not found").
		WithForm(formID).
		WithDetail("submissionId", submissionID)
}
