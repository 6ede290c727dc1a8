package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/credentials"
	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/scan"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/radouane/scanner/internal/session"
	"github.com/radouane/scanner/internal/testutil"
)

type memoryCredentials struct {
	mu       sync.Mutex
	token    string
	requests int
}

func (c *memoryCredentials) Credential() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

func (c *memoryCredentials) RequestEntry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
}

func (c *memoryCredentials) Status() credentials.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := credentials.Status{Provider: "test", Present: c.token != ""}
	if st.Present {
		st.Source = credentials.SourceFile
		st.Masked = credentials.Mask(c.token)
	}
	return st
}

func (c *memoryCredentials) Set(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *memoryCredentials) Clear() error {
	return c.Set("")
}

type fixture struct {
	handler  *Handler
	server   *httptest.Server
	stream   *testutil.FakeStream
	analyzer *testutil.FakeAnalyzer
	creds    *memoryCredentials
	previews *imageasset.PreviewStore
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	f := &fixture{
		stream:   testutil.NewFakeStream(capture.FocusSingleShot, capture.FocusContinuous),
		analyzer: &testutil.FakeAnalyzer{Response: testutil.AnalysisResponse(85)},
		creds:    &memoryCredentials{token: token},
		previews: imageasset.NewPreviewStore(),
	}
	logger, _ := testutil.NewLogger()
	f.handler = New(Config{
		Factory: &session.Factory{
			Previews:    f.previews,
			Device:      &testutil.FakeDevice{Stream: f.stream},
			Analyzer:    f.analyzer,
			Credentials: f.creds,
			Logger:      logger,
		},
		Credentials: f.creds,
		Logger:      logger,
	})
	f.server = httptest.NewServer(f.handler.Routes())
	t.Cleanup(func() {
		f.server.Close()
		f.handler.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (f *fixture) createSession(t *testing.T) session.View {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/sessions/", nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return view
}

func (f *fixture) upload(t *testing.T, id, source, filename, contentType string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if source != "" {
		if err := mw.WriteField("source", source); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return f.do(t, http.MethodPost, "/api/sessions/"+id+"/image", &buf, mw.FormDataContentType())
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return e
}

func TestHealthcheck(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.do(t, http.MethodGet, "/healthcheck", nil, "")
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("Expected 200 OK, got %d %q", resp.StatusCode, body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, "")
	view := f.createSession(t)
	if view.Scan.State != scan.StateIdle {
		t.Errorf("Expected idle session, got %s", view.Scan.State)
	}

	resp, body := f.do(t, http.MethodGet, "/api/sessions/", nil, "")
	var views []session.View
	if err := json.Unmarshal(body, &views); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions: %d %v", resp.StatusCode, err)
	}
	if len(views) != 1 || views[0].ID != view.ID {
		t.Errorf("Expected the created session to be listed, got %+v", views)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/sessions/"+view.ID+"/", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	resp, body = f.do(t, http.MethodGet, "/api/sessions/"+view.ID+"/", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Session not found" {
		t.Errorf("Expected 'Session not found', got %q", e.Error)
	}
}

func TestUploadAndPreview(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID
	data := testutil.JPEG(20, 10)

	resp, body := f.upload(t, id, "drop", "label.jpg", "image/jpeg", data)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var up uploadResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	img := up.Session.Scan.Image
	if up.Session.Scan.State != scan.StateImageReady || img == nil {
		t.Fatalf("Expected image_ready with image, got %s", up.Session.Scan.State)
	}
	if img.Source != imageasset.SourceDrop || img.Width != 20 || img.Height != 10 {
		t.Errorf("Expected 20x10 drop image, got %+v", img)
	}

	resp, preview := f.do(t, http.MethodGet, img.PreviewURL, nil, "")
	if resp.StatusCode != http.StatusOK || !bytes.Equal(preview, data) {
		t.Errorf("Expected preview bytes, got %d (%d bytes)", resp.StatusCode, len(preview))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", ct)
	}

	resp, body = f.upload(t, id, "picker", "notes.txt", "text/plain", []byte("not an image"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-image, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Kind != scanerr.KindInvalidSource {
		t.Errorf("Expected invalid_source, got %q", e.Kind)
	}
	if resp, _ := f.do(t, http.MethodGet, img.PreviewURL, nil, ""); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected previous preview to survive a rejected upload, got %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/sessions/"+id+"/image", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 on clear, got %d", resp.StatusCode)
	}
	if resp, _ := f.do(t, http.MethodGet, img.PreviewURL, nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected revoked preview to 404, got %d", resp.StatusCode)
	}
}

func TestUploadRejectsUnknownSource(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID
	resp, _ := f.upload(t, id, "scanner", "a.jpg", "image/jpeg", testutil.JPEG(4, 4))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestURLUploadDisabled(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID
	resp, _ := f.do(t, http.MethodPost, "/api/sessions/"+id+"/image", strings.NewReader(`{"image_url":"http://example.com/a.jpg"}`), "application/json")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}
}

func TestURLUpload(t *testing.T) {
	data := testutil.JPEG(6, 6)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}))
	defer origin.Close()

	f := newFixture(t, "")
	f.handler.allowURL = true
	id := f.createSession(t).ID

	tests := []struct {
		name       string
		url        string
		wantStatus int
	}{
		{"downloads and sniffs", origin.URL + "/label.jpg", http.StatusOK},
		{"upstream failure", origin.URL + "/missing.jpg", http.StatusBadRequest},
		{"non-http scheme", "file:///etc/passwd", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"image_url": tt.url})
			resp, out := f.do(t, http.MethodPost, "/api/sessions/"+id+"/image", bytes.NewReader(body), "application/json")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, out)
			}
		})
	}
}

func TestAnalyzeFlow(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID

	resp, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/analyze?wait=true", nil, "")
	if resp.StatusCode != http.StatusBadRequest || decodeError(t, body).Kind != scanerr.KindNoImageSelected {
		t.Errorf("Expected 400 no_image_selected, got %d %s", resp.StatusCode, body)
	}

	f.upload(t, id, "", "a.jpg", "image/jpeg", testutil.JPEG(8, 8))

	resp, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/analyze?wait=true", nil, "")
	if resp.StatusCode != http.StatusUnauthorized || decodeError(t, body).Kind != scanerr.KindMissingCredential {
		t.Errorf("Expected 401 missing_credential, got %d %s", resp.StatusCode, body)
	}
	if f.analyzer.Calls() != 0 {
		t.Errorf("Expected no provider call without a credential, got %d", f.analyzer.Calls())
	}

	resp, body = f.do(t, http.MethodPut, "/api/credential", strings.NewReader(`{"token":"sk-test-abcd1234"}`), "application/json")
	var st credentials.Status
	if err := json.Unmarshal(body, &st); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("set credential: %d %v", resp.StatusCode, err)
	}
	if !st.Present || strings.Contains(st.Masked, "sk-test") {
		t.Errorf("Expected a present, masked credential, got %+v", st)
	}

	resp, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/analyze?wait=true", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Scan.State != scan.StateResolved || view.Scan.Result == nil {
		t.Fatalf("Expected resolved with result, got %s", view.Scan.State)
	}
	if view.Scan.Result.OverallScore != 85 {
		t.Errorf("Expected score 85, got %d", view.Scan.Result.OverallScore)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/sessions/"+id+"/analyze", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 when already resolved, got %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil, "")
	if err := json.Unmarshal(body, &view); err != nil || view.Scan.State != scan.StateIdle {
		t.Errorf("Expected idle after reset, got %d %s", resp.StatusCode, view.Scan.State)
	}
}

func TestAnalyzeProviderError(t *testing.T) {
	f := newFixture(t, "key")
	f.analyzer.Response = []byte(`{"overallScore": 150}`)
	id := f.createSession(t).ID
	f.upload(t, id, "", "a.jpg", "image/jpeg", testutil.JPEG(8, 8))

	resp, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/analyze?wait=true", nil, "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d: %s", resp.StatusCode, body)
	}
	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Scan.State != scan.StateFailed || view.Scan.Error == nil || view.Scan.Error.Kind != scanerr.KindInvalidResponse {
		t.Errorf("Expected failed with invalid_response, got %s %+v", view.Scan.State, view.Scan.Error)
	}
}

func TestSettings(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID

	tests := []struct {
		path       string
		body       string
		wantStatus int
	}{
		{"/category", `{"category":"food_beverage"}`, http.StatusOK},
		{"/category", `{"category":"spaceships"}`, http.StatusBadRequest},
		{"/category", `not json`, http.StatusBadRequest},
		{"/language", `{"language":"ar"}`, http.StatusOK},
		{"/language", `{"language":"fr"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, body := f.do(t, http.MethodPut, "/api/sessions/"+id+tt.path, strings.NewReader(tt.body), "application/json")
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("PUT %s %s: expected %d, got %d: %s", tt.path, tt.body, tt.wantStatus, resp.StatusCode, body)
		}
	}

	_, body := f.do(t, http.MethodGet, "/api/sessions/"+id+"/", nil, "")
	var view session.View
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Scan.Language != "ar" || view.Scan.Category != "food_beverage" {
		t.Errorf("Expected ar/food_beverage, got %s/%s", view.Scan.Language, view.Scan.Category)
	}
}

func TestCameraEndpoints(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID
	base := "/api/sessions/" + id + "/camera"

	resp, _ := f.do(t, http.MethodPost, base+"/focus", strings.NewReader(`{"x":0.5,"y":0.5}`), "application/json")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 focusing a closed camera, got %d", resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodPost, base+"/open", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on open, got %d: %s", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodPost, base+"/open", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 opening twice, got %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodPost, base+"/focus", strings.NewReader(`{"x":1.7,"y":-1}`), "application/json")
	var fr focusResponse
	if err := json.Unmarshal(body, &fr); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("focus: %d %v", resp.StatusCode, err)
	}
	if fr.Focus.Mode != capture.FocusSingleShot || fr.Focus.Point != (capture.Point{X: 1, Y: 0}) {
		t.Errorf("Expected clamped single-shot focus, got %+v", fr.Focus)
	}

	resp, body = f.do(t, http.MethodPost, base+"/capture", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on capture, got %d: %s", resp.StatusCode, body)
	}
	var up uploadResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode capture: %v", err)
	}
	if up.Session.Camera.State != capture.StateClosed {
		t.Errorf("Expected camera closed after capture, got %s", up.Session.Camera.State)
	}
	if up.Session.Scan.Image == nil || up.Session.Scan.Image.Source != imageasset.SourceCamera {
		t.Errorf("Expected camera image selected, got %+v", up.Session.Scan.Image)
	}
	if f.stream.TotalStops() != len(f.stream.TrackList) {
		t.Errorf("Expected each track stopped once, got %d stops", f.stream.TotalStops())
	}

	resp, _ = f.do(t, http.MethodPost, base+"/close", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected close to be idempotent, got %d", resp.StatusCode)
	}
}

func TestCredentialEndpoints(t *testing.T) {
	f := newFixture(t, "")

	resp, _ := f.do(t, http.MethodPut, "/api/credential", strings.NewReader(`{"token":"  "}`), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank token, got %d", resp.StatusCode)
	}

	f.do(t, http.MethodPut, "/api/credential", strings.NewReader(`{"token":"abcdefgh"}`), "application/json")
	_, body := f.do(t, http.MethodDelete, "/api/credential", nil, "")
	var st credentials.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Present {
		t.Error("Expected credential cleared")
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID

	paths := []string{
		"/api/sessions/",
		"/api/sessions/" + id,
		"/api/sessions/" + id + "/image",
		"/api/sessions/" + id + "/analyze",
		"/api/sessions/" + id + "/camera/open",
		"/api/credential",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, f.server.URL+path, nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			req.Header.Set("Origin", "http://example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("OPTIONS %s: %v", path, err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("Expected 204, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Expected wildcard origin, got %q", got)
			}
			if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
				t.Errorf("Expected POST in allowed methods, got %q", got)
			}
		})
	}
}

func TestEventsSocket(t *testing.T) {
	f := newFixture(t, "")
	id := f.createSession(t).ID

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/sessions/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg socketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != EventSession || msg.Session == nil || msg.Session.ID != id {
		t.Fatalf("Expected initial session message, got %+v", msg)
	}

	f.upload(t, id, "", "a.jpg", "image/jpeg", testutil.JPEG(8, 8))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != EventScan || msg.Scan == nil || msg.Scan.State != scan.StateImageReady {
		t.Errorf("Expected image_ready scan event, got %+v", msg)
	}

	f.do(t, http.MethodPost, "/api/sessions/"+id+"/camera/open", nil, "")
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != EventCamera || msg.Camera == nil || msg.Camera.Kind != capture.EventOpened {
		t.Errorf("Expected camera opened event, got %+v", msg)
	}
}

func TestEventsSocketOrigin(t *testing.T) {
	f := newFixture(t, "")
	f.handler.origins["http://app.example.com"] = true
	id := f.createSession(t).ID
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/sessions/" + id

	tests := []struct {
		name   string
		origin string
		allow  bool
	}{
		{"no origin", "", true},
		{"serving origin", f.server.URL, true},
		{"configured origin", "http://app.example.com", true},
		{"foreign origin", "http://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if tt.allow {
				if err != nil {
					t.Fatalf("Expected handshake to succeed, got %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("Expected handshake to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected 403, got %v", resp)
			}
		})
	}
}

func TestStaticTraversal(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, "")
	f.handler.staticDir = dir

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/../secret", nil)
	f.handler.HandleStatic(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}
