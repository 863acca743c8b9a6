package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/bizimport/internal/config"
	"github.com/JonMunkholm/bizimport/internal/importer"
	_ "github.com/JonMunkholm/bizimport/internal/importer/entities"
)

const leadsCSV = "company,contactName,email\nAcme Corp,Jane Doe,jane@acme.com\nGlobex,,john@globex.com\n"

// recordingSink keeps every batch it receives.
type recordingSink struct {
	mu      sync.Mutex
	batches []importer.Batch
	err     error
}

func (s *recordingSink) Commit(_ context.Context, batch importer.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Import: config.ImportConfig{
			DefaultEntity:  "prospect",
			Delimiter:      ",",
			HasHeaders:     true,
			SkipEmptyLines: true,
			TrimValues:     true,
			Encoding:       "utf-8",
			MaxFileSize:    1 << 20,
		},
		Upload:  config.UploadConfig{MaxConcurrent: 2, MaxWaitTime: 20 * time.Millisecond},
		Session: config.SessionConfig{MaxSessions: 10, IdleTTL: time.Hour, SweepInterval: time.Minute},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, sink importer.Sink) *Server {
	t.Helper()
	srv, err := NewServer(cfg, sink)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(srv.store.Close)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, srv *Server, id, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "file", name, content)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode session: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func createSession(t *testing.T, srv *Server, body string) SessionResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeSession(t, rec)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestListEntities(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})

	rec := doJSON(t, srv, http.MethodGet, "/api/entities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got []EntityResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d entities, want 4", len(got))
	}

	var required []string
	for _, e := range got {
		if e.Type != "prospect" {
			continue
		}
		for _, f := range e.Fields {
			if f.Required {
				required = append(required, f.Name)
			}
		}
	}
	if diff := cmp.Diff([]string{"company", "contactName", "email"}, required); diff != "" {
		t.Errorf("prospect required fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadTemplate(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantLine   string
	}{
		{name: "comma", path: "/api/template/prospect", wantStatus: http.StatusOK, wantLine: "Company,Contact Name,Email,Phone,Source,Status,Notes"},
		{name: "semicolon", path: "/api/template/prospect?delimiter=semicolon", wantStatus: http.StatusOK, wantLine: "Company;Contact Name;Email;Phone;Source;Status;Notes"},
		{name: "unknown entity", path: "/api/template/invoice", wantStatus: http.StatusNotFound},
		{name: "bad delimiter", path: "/api/template/prospect?delimiter=colon", wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantLine == "" {
				return
			}
			if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="modele_import_prospect.csv"` {
				t.Errorf("Content-Disposition = %q", got)
			}
			if got := rec.Header().Get("Content-Type"); got != "text/csv" {
				t.Errorf("Content-Type = %q", got)
			}
			first, _, _ := strings.Cut(rec.Body.String(), "\n")
			if first != tt.wantLine {
				t.Errorf("header line = %q, want %q", first, tt.wantLine)
			}
		})
	}
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})

	t.Run("defaults", func(t *testing.T) {
		got := createSession(t, srv, "")
		if got.Entity != "prospect" || got.Stage != importer.StageSelectFile {
			t.Errorf("session = %+v", got.Session)
		}
		if got.Options != importer.DefaultOptions() {
			t.Errorf("options = %+v, want defaults", got.Options)
		}
	})

	t.Run("entity and options", func(t *testing.T) {
		got := createSession(t, srv, `{"entity":"contact","options":{"delimiter":";","trimValues":false}}`)
		if got.Entity != "contact" {
			t.Errorf("entity = %q", got.Entity)
		}
		if got.Options.Delimiter != ';' || got.Options.TrimValues {
			t.Errorf("options = %+v", got.Options)
		}
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown entity", body: `{"entity":"invoice"}`, wantStatus: http.StatusNotFound, wantCode: "WF002"},
		{name: "bad delimiter", body: `{"options":{"delimiter":":"}}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "FILE003"},
		{name: "malformed body", body: `{"entity":`, wantStatus: http.StatusBadRequest, wantCode: "REQ001"},
		{name: "unknown field", body: `{"kind":"prospect"}`, wantStatus: http.StatusBadRequest, wantCode: "REQ001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/sessions", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestCreateSession_TooMany(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxSessions = 1
	srv := newTestServer(t, cfg, &recordingSink{})

	createSession(t, srv, "")
	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if got := decodeError(t, rec).Code; got != "SES002" {
		t.Errorf("code = %q, want SES002", got)
	}
}

func TestImportFlow(t *testing.T) {
	sink := &recordingSink{}
	srv := newTestServer(t, testConfig(), sink)
	id := createSession(t, srv, "").ID

	rec := upload(t, srv, id, "leads.csv", leadsCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	loaded := decodeSession(t, rec)
	if loaded.Stage != importer.StageMapFields || loaded.FileName != "leads.csv" {
		t.Errorf("after upload: stage %q file %q", loaded.Stage, loaded.FileName)
	}
	if diff := cmp.Diff([]string{"company", "contactName", "email"}, loaded.Columns); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	verified := decodeSession(t, rec)
	want := importer.Stats{Total: 2, Valid: 1, Invalid: 1}
	if diff := cmp.Diff(want, verified.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if !verified.Ready {
		t.Error("verified session should be ready to commit")
	}
	if len(verified.Rejected) != 1 || verified.Rejected[0].Line != 3 {
		t.Errorf("rejected = %+v", verified.Rejected)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/commit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeSession(t, rec).Stage; got != importer.StageDone {
		t.Errorf("stage after commit = %q", got)
	}

	if len(sink.batches) != 1 {
		t.Fatalf("sink received %d batches, want 1", len(sink.batches))
	}
	wantRecords := []importer.Record{{"company": "Acme Corp", "contactName": "Jane Doe", "email": "jane@acme.com"}}
	if diff := cmp.Diff(wantRecords, sink.batches[0].Records); diff != "" {
		t.Errorf("committed records mismatch (-want +got):\n%s", diff)
	}

	// A committed session rejects a second commit
	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/commit", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second commit status = %d, want 422", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "WF001" || resp.Session == nil || resp.Session.Stage != importer.StageDone {
		t.Errorf("second commit response = %+v", resp)
	}
	if len(sink.batches) != 1 {
		t.Errorf("sink called again: %d batches", len(sink.batches))
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := decodeSession(t, rec).Stage; got != importer.StageSelectFile {
		t.Errorf("stage after reset = %q", got)
	}
}

func TestVerify_MissingRequiredColumn(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, "").ID

	if rec := upload(t, srv, id, "leads.csv", "company,contactName\nAcme Corp,Jane Doe\n"); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/verify", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("verify status = %d, want 422", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "MAP001" {
		t.Errorf("code = %q, want MAP001", resp.Code)
	}
	if resp.Session == nil || resp.Session.Stage != importer.StageMapFields {
		t.Fatalf("session = %+v", resp.Session)
	}
	if len(resp.Session.Errors) != 1 || !strings.Contains(resp.Session.Errors[0], "Email") {
		t.Errorf("errors = %v, want one naming Email", resp.Session.Errors)
	}
}

func TestRemap(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, "").ID

	if rec := upload(t, srv, id, "leads.csv", "company,contactName,Courriel\nAcme Corp,Jane Doe,jane@acme.com\n"); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	rec := doJSON(t, srv, http.MethodPut, "/api/sessions/"+id+"/mapping/email", `{"sourceHeader":"Courriel"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("remap status = %d, body %s", rec.Code, rec.Body.String())
	}
	var email importer.FieldMapping
	for _, m := range decodeSession(t, rec).Mapping {
		if m.TargetField == "email" {
			email = m
		}
	}
	want := importer.FieldMapping{TargetField: "email", SourceHeader: "Courriel", SampleValue: "jane@acme.com"}
	if diff := cmp.Diff(want, email); diff != "" {
		t.Errorf("email mapping mismatch (-want +got):\n%s", diff)
	}

	if rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/verify", ""); rec.Code != http.StatusOK {
		t.Errorf("verify after remap status = %d", rec.Code)
	}

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown header", path: "/mapping/email", body: `{"sourceHeader":"Mail"}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "MAP003"},
		{name: "unknown field", path: "/mapping/fax", body: `{"sourceHeader":"Courriel"}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "MAP002"},
		{name: "missing body", path: "/mapping/email", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "REQ001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPut, "/api/sessions/"+id+tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestConfigure_ReparsesFile(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, "").ID

	rec := upload(t, srv, id, "leads.csv", "company;contactName;email\nAcme Corp;Jane Doe;jane@acme.com\n")
	if got := decodeSession(t, rec).Columns; len(got) != 1 {
		t.Fatalf("comma parse headers = %v, want one column", got)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/sessions/"+id+"/options", `{"delimiter":"semicolon"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("configure status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)
	if diff := cmp.Diff([]string{"company", "contactName", "email"}, got.Columns); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if got.Options.Delimiter != ';' || !got.Options.HasHeaders {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestSelectEntity(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, "").ID

	rec := doJSON(t, srv, http.MethodPut, "/api/sessions/"+id+"/entity", `{"entity":"employee"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeSession(t, rec).Entity; got != "employee" {
		t.Errorf("entity = %q", got)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/sessions/"+id+"/entity", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty entity status = %d, want 400", rec.Code)
	}
}

func TestUploadFile_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 32
	srv := newTestServer(t, cfg, &recordingSink{})
	id := createSession(t, srv, "").ID

	t.Run("too large", func(t *testing.T) {
		rec := upload(t, srv, id, "big.csv", strings.Repeat("a,b,c\n", 20))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.Code != "FILE001" || resp.Session == nil || resp.Session.Stage != importer.StageSelectFile {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		rec := upload(t, srv, id, "empty.csv", "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		if got := decodeError(t, rec).Code; got != "FILE002" {
			t.Errorf("code = %q, want FILE002", got)
		}
	})

	t.Run("no file field", func(t *testing.T) {
		body, contentType := multipartBody(t, "", "", "")
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/file", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/file", `{"file":"x"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := upload(t, srv, "missing", "leads.csv", leadsCSV)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if got := decodeError(t, rec).Code; got != "SES001" {
			t.Errorf("code = %q, want SES001", got)
		}
	})
}

func TestCommit_SinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("connection refused")}
	srv := newTestServer(t, testConfig(), sink)
	id := createSession(t, srv, "").ID

	upload(t, srv, id, "leads.csv", leadsCSV)
	doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/verify", "")

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/commit", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "SINK001" || resp.Session == nil || resp.Session.Stage != importer.StageVerify {
		t.Errorf("response = %+v", resp)
	}
	if resp.Message != "The records could not be saved" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Session.Errors) != 1 {
		t.Errorf("session errors = %v, want one", resp.Session.Errors)
	}
}

func TestCommit_Busy(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxConcurrent = 1
	srv := newTestServer(t, cfg, &recordingSink{})
	id := createSession(t, srv, "").ID

	if err := srv.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer srv.limiter.Release()

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/commit", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != "SES003" {
		t.Errorf("code = %q, want SES003", got)
	}
}

func TestDeleteSession(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, "").ID

	if rec := doJSON(t, srv, http.MethodDelete, "/api/sessions/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/api/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodDelete, "/api/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSessionPage(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, `{"entity":"opportunity"}`).ID

	rec := doJSON(t, srv, http.MethodGet, "/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "<title>Import Opportunities</title>") {
		t.Errorf("page body = %s", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rec.Code)
	}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Error("page errors should not be JSON")
	}
}

func TestSessionEvents(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, srv, "").ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/"+id+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	// The stream is subscribed once headers arrive
	body, contentType := multipartBody(t, "file", "leads.csv", leadsCSV)
	up, err := http.Post(ts.URL+"/api/sessions/"+id+"/file", contentType, body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	up.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}

	if eventLine != "event: stage-changed" {
		t.Fatalf("event line = %q", eventLine)
	}
	var ev importer.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	want := importer.Event{Kind: importer.EventStageChanged, SessionID: id, From: importer.StageSelectFile, To: importer.StageMapFields}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionEvents_UnknownSession(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})

	rec := doJSON(t, srv, http.MethodGet, "/api/sessions/missing/events", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestApplyPreset(t *testing.T) {
	srv := newTestServer(t, testConfig(), &recordingSink{})
	id := createSession(t, srv, `{"entity":"contact"}`).ID

	upload(t, srv, id, "export.csv", "Société;Interlocuteur;Courriel\nAcme Corp;Jane Doe;jane@acme.com\n")

	doc := "name: crm\nentity: prospect\noptions:\n  delimiter: ';'\nmapping:\n  company: Société\n  contactName: Interlocuteur\n  email: Courriel\n  phone: Portable\n"
	req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/preset", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp presetResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Entity != "prospect" || len(resp.Columns) != 3 {
		t.Errorf("entity %q headers %v", resp.Entity, resp.Columns)
	}
	if diff := cmp.Diff([]string{"phone"}, resp.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}

	if rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/verify", ""); rec.Code != http.StatusOK {
		t.Errorf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}

	bad := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/preset", strings.NewReader("entity: invoice\n"))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, bad)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid preset status = %d, want 422", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != "PRE001" {
		t.Errorf("code = %q, want PRE001", got)
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORSAllowedOrigins = []string{"https://crm.example.com"}
	srv := newTestServer(t, cfg, &recordingSink{})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://crm.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want none", got)
	}
}
