package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bizimport/internal/importer"
	"github.com/JonMunkholm/bizimport/internal/logging"
	"github.com/JonMunkholm/bizimport/internal/preset"
	"github.com/JonMunkholm/bizimport/internal/web/views"
)

// maxJSONBody caps request bodies of the JSON endpoints.
const maxJSONBody = 64 << 10

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 1 << 20

// SessionResponse is the JSON snapshot of a session.
type SessionResponse struct {
	importer.Session
	Columns []string `json:"headers"`
	Ready   bool     `json:"readyToCommit"`
}

func newSessionResponse(s importer.Session) SessionResponse {
	return SessionResponse{
		Session: s,
		Columns: s.Headers(),
		Ready:   s.ReadyToCommit() == nil,
	}
}

// EntityResponse describes a registered entity type.
type EntityResponse struct {
	Type   importer.EntityType `json:"type"`
	Label  string              `json:"label"`
	Fields []FieldResponse     `json:"fields"`
}

// FieldResponse describes one target field.
type FieldResponse struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

type createSessionRequest struct {
	Entity  importer.EntityType `json:"entity"`
	Options preset.Options      `json:"options"`
}

type remapRequest struct {
	SourceHeader *string `json:"sourceHeader"`
}

type selectEntityRequest struct {
	Entity importer.EntityType `json:"entity"`
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// respondSession writes the session snapshot, or the error with the
// snapshot attached.
func respondSession(w http.ResponseWriter, r *http.Request, session importer.Session, err error, status int) {
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			respondError(w, r, err, nil)
			return
		}
		respondError(w, r, err, &session)
		return
	}
	writeJSON(w, r, status, newSessionResponse(session))
}

// handleHealth reports liveness and load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
		"imports":  s.limiter.Status(),
	})
}

// handleListEntities returns every registered entity type with its fields.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	defs := importer.All()
	resp := make([]EntityResponse, 0, len(defs))
	for _, def := range defs {
		fields := make([]FieldResponse, len(def.Fields))
		for i, f := range def.Fields {
			fields[i] = FieldResponse{Name: f.Name, Label: f.Label, Required: f.Required}
		}
		resp = append(resp, EntityResponse{Type: def.Type, Label: def.Label, Fields: fields})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleDownloadTemplate returns a sample file for an entity type.
// An optional ?delimiter= selects the separator.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	entity := importer.EntityType(chi.URLParam(r, "entity"))

	comma := rune(importer.DelimiterComma)
	if d := r.URL.Query().Get("delimiter"); d != "" {
		var err error
		if comma, err = importer.ParseDelimiter(d); err != nil {
			respondError(w, r, err, nil)
			return
		}
	}

	var buf bytes.Buffer
	if err := importer.WriteTemplate(&buf, entity, comma); err != nil {
		respondError(w, r, err, nil)
		return
	}

	// Set headers for CSV download
	w.Header().Set("Content-Type", importer.TemplateContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, importer.TemplateFileName(entity)))
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.FromContext(r.Context()).Warn("template write failed", "error", err)
	}
}

// handleCreateSession starts a new import session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	entity := req.Entity
	if entity == "" {
		entity = importer.EntityType(s.cfg.Import.DefaultEntity)
	}
	opts, err := req.Options.Apply(s.defaults)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	session, err := s.store.Create(entity, opts)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	logging.WithFields(r.Context(), "session_id", session.ID).Info("import session created",
		"entity", entity,
		"sessions_live", s.store.Len(),
	)
	writeJSON(w, r, http.StatusCreated, newSessionResponse(session))
}

// handleGetSession returns the current snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.Get(chi.URLParam(r, "id"))
	respondSession(w, r, session, err, http.StatusOK)
}

// handleDeleteSession discards a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadFile reads the multipart "file" field into the session.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(id); err != nil {
		respondError(w, r, err, nil)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, nil)
		return
	}
	defer s.limiter.Release()

	// Limit request size
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	session, err := s.store.Do(id, func(wf *importer.Workflow) error {
		return wf.ReadFile(r.Context(), header.Filename, file)
	})
	respondSession(w, r, session, err, http.StatusOK)
}

// handleSelectEntity switches the target schema.
func (s *Server) handleSelectEntity(w http.ResponseWriter, r *http.Request) {
	var req selectEntityRequest
	if err := decodeJSON(r, &req); err != nil || req.Entity == "" {
		writeError(w, r, http.StatusBadRequest, "entity is required")
		return
	}

	session, err := s.store.Do(chi.URLParam(r, "id"), func(wf *importer.Workflow) error {
		return wf.SelectEntity(r.Context(), req.Entity)
	})
	respondSession(w, r, session, err, http.StatusOK)
}

// handleConfigure updates the tokenizer options and re-parses the file.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req preset.Options
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.store.Do(chi.URLParam(r, "id"), func(wf *importer.Workflow) error {
		opts, err := req.Apply(wf.Session().Options)
		if err != nil {
			return err
		}
		return wf.Configure(r.Context(), opts)
	})
	respondSession(w, r, session, err, http.StatusOK)
}

// handleRemap points one target field at a source column.
func (s *Server) handleRemap(w http.ResponseWriter, r *http.Request) {
	var req remapRequest
	if err := decodeJSON(r, &req); err != nil || req.SourceHeader == nil {
		writeError(w, r, http.StatusBadRequest, "sourceHeader is required")
		return
	}

	field := chi.URLParam(r, "field")
	session, err := s.store.Do(chi.URLParam(r, "id"), func(wf *importer.Workflow) error {
		return wf.Remap(r.Context(), field, *req.SourceHeader)
	})
	respondSession(w, r, session, err, http.StatusOK)
}

// presetResponse is the session after a preset was applied.
type presetResponse struct {
	SessionResponse
	Skipped []string `json:"skippedFields,omitempty"`
}

// handleApplyPreset applies a YAML preset to the session.
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := preset.Parse(data)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	var skipped []string
	session, err := s.store.Do(chi.URLParam(r, "id"), func(wf *importer.Workflow) error {
		var err error
		skipped, err = p.Apply(r.Context(), wf)
		return err
	})
	if err != nil {
		respondSession(w, r, session, err, http.StatusOK)
		return
	}

	logging.WithFields(r.Context(), "session_id", session.ID).Info("import preset applied",
		"preset", p.Name,
		"skipped_fields", len(skipped),
	)
	writeJSON(w, r, http.StatusOK, presetResponse{
		SessionResponse: newSessionResponse(session),
		Skipped:         skipped,
	})
}

// handleVerify validates the mapping and every row.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.Do(chi.URLParam(r, "id"), func(wf *importer.Workflow) error {
		return wf.Verify(r.Context())
	})
	respondSession(w, r, session, err, http.StatusOK)
}

// handleCommit hands the valid records to the sink.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(id); err != nil {
		respondError(w, r, err, nil)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, nil)
		return
	}
	defer s.limiter.Release()

	start := time.Now()
	session, err := s.store.Do(id, func(wf *importer.Workflow) error {
		return wf.Commit(r.Context())
	})
	if err == nil {
		logging.WithFields(r.Context(), "session_id", id).Info("import commit completed",
			"records", len(session.Records),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	respondSession(w, r, session, err, http.StatusOK)
}

// handleReset discards the file and returns to file selection.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.Do(chi.URLParam(r, "id"), func(wf *importer.Workflow) error {
		wf.Reset(r.Context())
		return nil
	})
	respondSession(w, r, session, err, http.StatusOK)
}

// handleSessionEvents streams workflow events via Server-Sent Events.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe, err := s.store.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		logging.FromContext(r.Context()).Warn("streaming not supported", "error", err)
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Session deleted or evicted
				fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				logging.FromContext(r.Context()).Error("event encode error", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			_ = rc.Flush()

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

// handleSessionPage renders the HTML view of a session.
func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	def, err := importer.Lookup(session.Entity)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.SessionPage(session, def).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render session page", "error", err)
	}
}
