package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/analyzer"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/db"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/handlers"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/pipeline"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/repository"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/services"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/storage"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const analyzeReply = `{
	"key_entities": "* Landlord: Acme Estates\n* Tenant: J. Doe",
	"summary": "**Monthly Rent:** 25,000\n**Late Fee:** 10% interest on overdue rent",
	"detailed_analysis": [
		{
			"original_clause": "Tenant bears all structural repairs.",
			"analysis": {
				"risk_level": "red",
				"risk_explanation": "Structural repairs are normally the landlord's duty.",
				"actionable_advice": "Limit to minor repairs.",
				"clause_category": "Maintenance"
			}
		},
		{
			"original_clause": "Either party may terminate with 30 days notice.",
			"analysis": {
				"risk_level": "green",
				"risk_explanation": "Balanced notice period.",
				"actionable_advice": "None.",
				"clause_category": "Termination"
			}
		}
	],
	"flowchart": "graph TD; A[Sign]-->B[Pay rent];"
}`

type testServer struct {
	handler http.Handler
	gate    chan struct{}
}

func newTestServer(t *testing.T, block bool) *testServer {
	t.Helper()

	ts := &testServer{}
	if block {
		ts.gate = make(chan struct{})
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/analyze":
			// The server only notices a client hang-up once the body is consumed.
			io.Copy(io.Discard, r.Body)
			if ts.gate != nil {
				select {
				case <-ts.gate:
				case <-r.Context().Done():
					return
				}
			}
			io.WriteString(w, analyzeReply)
		case "/chatbot":
			io.WriteString(w, `{"answer": "Structural repairs should be the landlord's responsibility."}`)
		case "/loan_comparison":
			io.WriteString(w, `{"comparison": "The late fee rate is above the market average."}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	conn, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn))

	logger := utils.NewLoggerWithWriter(io.Discard, "error")
	repo := repository.NewRepository(conn)
	az := analyzer.NewHTTPAnalyzer(backend.URL, 5*time.Second, logger)
	manager := pipeline.NewManager(repo, storage.NewMemoryStorage(), az, logger, pipeline.Options{
		MaxConcurrentJobs: 2,
		MaxFileSize:       1024,
		ProgressInterval:  10 * time.Millisecond,
	})
	t.Cleanup(manager.Close)

	svc := services.NewService(manager, repo, az, logger)
	ts.handler = NewRouter(svc, manager, Options{
		MaxFileSize:    1024,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, logger)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartFile(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) waitForStatus(t *testing.T, id string, status models.JobStatus) *models.Job {
	t.Helper()

	var job models.Job
	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/v1/jobs/"+id, nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		job = decode[models.Job](t, rec)
		return job.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return &job
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["active_jobs"])
}

func TestUploadAnalyzeChatFlow(t *testing.T) {
	ts := newTestServer(t, false)

	body, contentType := multipartFile(t, "lease.txt", []byte("The tenant bears all structural repairs."))
	rec := ts.do(t, http.MethodPost, "/api/v1/documents/upload", body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	accepted := decode[models.JobResponse](t, rec)
	require.NotNil(t, accepted.Job)
	assert.Equal(t, models.JobStatusQueued, accepted.Job.Status)
	id := accepted.Job.ID

	done := ts.waitForStatus(t, id, models.JobStatusComplete)
	assert.Equal(t, float64(100), done.Progress)
	assert.Equal(t, "lease.txt", done.Filename)

	rec = ts.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/result", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[models.AnalysisResult](t, rec)
	assert.Len(t, result.Clauses, 2)
	assert.Equal(t, models.RiskRisky, result.OverallRisk)
	assert.Equal(t, 1, result.RiskCounts[models.RiskSafe])
	assert.Equal(t, []models.KeyEntity{
		{Label: "Landlord", Value: "Acme Estates"},
		{Label: "Tenant", Value: "J. Doe"},
	}, result.KeyEntities)

	rec = ts.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/chat", strings.NewReader(`{"question":"Who pays for repairs?"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	chat := decode[models.ChatResponse](t, rec)
	assert.Contains(t, chat.Answer, "landlord")
	assert.Len(t, chat.Messages, 2)

	rec = ts.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/chat", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	transcript := decode[map[string][]models.ChatMessage](t, rec)
	assert.Len(t, transcript["messages"], 2)

	rec = ts.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/loan-comparison", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	loan := decode[models.LoanComparison](t, rec)
	assert.Equal(t, "The late fee rate is above the market average.", loan.Comparison)
	require.NotNil(t, loan.AgreementRate)
	assert.Equal(t, 10.0, *loan.AgreementRate)

	rec = ts.do(t, http.MethodDelete, "/api/v1/jobs/"+id, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name     string
		filename string
		content  []byte
		wantMsg  string
	}{
		{"empty", "lease.pdf", nil, "uploaded file is empty"},
		{"wrong type", "lease.docx", []byte("PK\x03\x04"), "only PDF and plain text files are allowed"},
		{"too large", "lease.txt", bytes.Repeat([]byte("a"), 2048), "File size exceeds the 1 KB limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartFile(t, tt.filename, tt.content)
			rec := ts.do(t, http.MethodPost, "/api/v1/documents/upload", body, contentType)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			errBody := decode[map[string]string](t, rec)
			assert.Equal(t, "validation", errBody["type"])
			assert.Contains(t, errBody["error"], tt.wantMsg)
		})
	}

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "no file"))
		require.NoError(t, mw.Close())

		rec := ts.do(t, http.MethodPost, "/api/v1/documents/upload", &buf, mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "No file provided")
	})
}

func TestSubmitText(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/documents/text", strings.NewReader(`{"text": "  "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/documents/text", strings.NewReader(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/documents/text", strings.NewReader(`{"text": "Rent is due monthly."}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decode[models.JobResponse](t, rec)
	assert.Equal(t, models.JobKindText, accepted.Job.Kind)

	ts.waitForStatus(t, accepted.Job.ID, models.JobStatusComplete)
}

func TestJobLookupErrors(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := utils.GenerateID()
	for _, path := range []string{
		"/api/v1/jobs/" + missing,
		"/api/v1/jobs/" + missing + "/result",
		"/api/v1/jobs/" + missing + "/chat",
		"/api/v1/jobs/" + missing + "/events",
	} {
		rec := ts.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.JSONEq(t, `{"error":"Job not found","type":"not_found"}`, rec.Body.String())
	}
}

func TestRunningJobConflictsAndCancel(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/documents/text", strings.NewReader(`{"text": "Rent is due monthly."}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[models.JobResponse](t, rec).Job.ID

	ts.waitForStatus(t, id, models.JobStatusAnalyzing)

	rec = ts.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/result", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/chat", strings.NewReader(`{"question":"Is this fair?"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/jobs/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.JobStatusCancelled, decode[models.Job](t, rec).Status)

	rec = ts.do(t, http.MethodDelete, "/api/v1/jobs/"+id, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/result", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t, true)
	server := httptest.NewServer(ts.handler)
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/api/v1/documents/text", "application/json", strings.NewReader(`{"text": "Rent is due monthly."}`))
	require.NoError(t, err)
	var accepted models.JobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/jobs/" + accepted.Job.ID + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	close(ts.gate)

	var messages []handlers.ProgressMessage
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg handlers.ProgressMessage
		if err := ws.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		messages = append(messages, msg)
	}

	require.NotEmpty(t, messages)
	last := messages[len(messages)-1]
	assert.Equal(t, handlers.MsgTypeComplete, last.Type)
	assert.Equal(t, float64(100), last.Job.Progress)
	for _, msg := range messages[:len(messages)-1] {
		assert.Equal(t, handlers.MsgTypeProgress, msg.Type)
	}
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, false)
	server := httptest.NewServer(ts.handler)
	t.Cleanup(server.Close)

	rec := ts.do(t, http.MethodPost, "/api/v1/documents/text", strings.NewReader(`{"text": "Rent is due monthly."}`), "application/json")
	id := decode[models.JobResponse](t, rec).Job.ID

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/jobs/" + id + "/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/documents/upload", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
