package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	internalbus "github.com/open-forensics/muletrace/internal/bus"
	"github.com/open-forensics/muletrace/internal/cache"
	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/export"
	"github.com/open-forensics/muletrace/internal/forensics"
	"github.com/open-forensics/muletrace/internal/repository"
)

func createTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := internalbus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine, err := forensics.New(domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	return NewServer(
		domain.ServerConfig{Host: "127.0.0.1", Port: 0},
		repo,
		cache.NewLRUCache(100),
		eventBus,
		engine,
		export.NewMemoryClient(),
		"test",
	)
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-test")

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func carouselRequest() AnalyzeRequest {
	members := []string{"CYC_A", "CYC_B", "CYC_C", "CYC_D"}
	var req AnalyzeRequest
	for i := range members {
		req.Transactions = append(req.Transactions, domain.TransactionRecord{
			ID:         fmt.Sprintf("cyc_%d", i),
			SenderID:   members[i],
			ReceiverID: members[(i+1)%len(members)],
			Amount:     9500,
			Timestamp:  fmt.Sprintf("2026-01-01 %02d:00:00", 10+i),
		})
	}
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("expected version test, got %s", body["version"])
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest("POST", "/analyze", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-Tenant-ID, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/analyze", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("expected the origin to be echoed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Tenant-ID, X-Request-ID" {
		t.Errorf("unexpected allowed headers: %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); strings.Contains(got, "PUT") {
		t.Errorf("PUT is not served by this API: %q", got)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv := createTestServer(t)

	rr := doRequest(t, srv, "POST", "/analyze", carouselRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.AnalysisID == "" {
		t.Error("expected a generated analysis id")
	}
	if result.Summary.FraudRingsDetected != 1 {
		t.Errorf("expected 1 fraud ring, got %d", result.Summary.FraudRingsDetected)
	}
	if len(result.SuspiciousAccounts) != 4 {
		t.Errorf("expected 4 suspicious accounts, got %d", len(result.SuspiciousAccounts))
	}

	// The result is retrievable afterwards, cache first.
	rr = doRequest(t, srv, "GET", "/analyses/"+result.AnalysisID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on retrieval, got %d", rr.Code)
	}
}

func TestAnalyzeInvalidBody(t *testing.T) {
	srv := createTestServer(t)

	req := httptest.NewRequest("POST", "/analyze", strings.NewReader("{not json"))
	req.Header.Set("X-Tenant-ID", "tenant-test")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAnalyzeStreamEndpoint(t *testing.T) {
	srv := createTestServer(t)

	rr := doRequest(t, srv, "POST", "/analyze/stream", carouselRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	// Every frame is a "data: {json}" line; the last one carries the result
	// and the completion marker.
	var frames []map[string]any
	scanner := bufio.NewScanner(rr.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("malformed frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	if len(frames) < 3 {
		t.Fatalf("expected heartbeat, progress and result frames, got %d", len(frames))
	}
	if frames[0]["status"] != "System Initializing" {
		t.Errorf("expected heartbeat first, got %v", frames[0])
	}
	last := frames[len(frames)-1]
	if last["complete"] != true {
		t.Errorf("final frame must carry the completion marker, got %v", last)
	}
	if _, ok := last["summary"]; !ok {
		t.Errorf("final frame must embed the full result, got %v", last)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	srv := createTestServer(t)

	rr := doRequest(t, srv, "GET", "/analyses/does-not-exist", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestListAnalyses(t *testing.T) {
	srv := createTestServer(t)

	doRequest(t, srv, "POST", "/analyze", carouselRequest())

	rr := doRequest(t, srv, "GET", "/analyses?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Count    int                      `json:"count"`
		Analyses []*domain.AnalysisRecord `json:"analyses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Count != 1 || len(body.Analyses) != 1 {
		t.Fatalf("expected 1 analysis, got count=%d len=%d", body.Count, len(body.Analyses))
	}
	if body.Analyses[0].Status != domain.AnalysisCompleted {
		t.Errorf("expected completed status, got %s", body.Analyses[0].Status)
	}
}

func TestAllowlistLifecycle(t *testing.T) {
	srv := createTestServer(t)

	rr := doRequest(t, srv, "POST", "/allowlist", map[string]string{
		"account_id": "MERCHANT_X",
		"reason":     "verified merchant",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, srv, "GET", "/allowlist", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Count   int                      `json:"count"`
		Entries []*domain.AllowlistEntry `json:"entries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Count != 1 || body.Entries[0].AccountID != "MERCHANT_X" {
		t.Fatalf("unexpected allowlist: %+v", body)
	}

	rr = doRequest(t, srv, "DELETE", "/allowlist/MERCHANT_X", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rr.Code)
	}

	rr = doRequest(t, srv, "DELETE", "/allowlist/MERCHANT_X", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on double delete, got %d", rr.Code)
	}
}

func TestAllowlistValidation(t *testing.T) {
	srv := createTestServer(t)

	rr := doRequest(t, srv, "POST", "/allowlist", map[string]string{"reason": "no account"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing account_id, got %d", rr.Code)
	}
}

func TestAllowlistSuppressesScoring(t *testing.T) {
	srv := createTestServer(t)

	// Persist the sink account before analyzing a fan-in burst into it.
	rr := doRequest(t, srv, "POST", "/allowlist", map[string]string{
		"account_id": "SINK_MEGA",
		"reason":     "settlement account",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	var req AnalyzeRequest
	for i := 0; i < 12; i++ {
		req.Transactions = append(req.Transactions, domain.TransactionRecord{
			ID:         fmt.Sprintf("fan_%02d", i),
			SenderID:   fmt.Sprintf("SRC_%02d", i),
			ReceiverID: "SINK_MEGA",
			Amount:     950,
			Timestamp:  fmt.Sprintf("2026-01-01 12:%02d:00", i),
		})
	}
	rr = doRequest(t, srv, "POST", "/analyze", req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	for _, sa := range result.SuspiciousAccounts {
		if sa.AccountID == "SINK_MEGA" {
			t.Fatalf("persisted allowlist entry must suppress flagging: %+v", sa)
		}
	}
}

func TestAccountProfile(t *testing.T) {
	srv := createTestServer(t)

	// No ledger analyzed yet.
	rr := doRequest(t, srv, "GET", "/accounts/CYC_A/profile", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any analysis, got %d", rr.Code)
	}

	doRequest(t, srv, "POST", "/analyze", carouselRequest())

	rr = doRequest(t, srv, "GET", "/accounts/CYC_A/profile", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var profile Profile
	if err := json.Unmarshal(rr.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.AccountID != "CYC_A" {
		t.Errorf("expected CYC_A, got %s", profile.AccountID)
	}
	if profile.Role == "" || profile.Recommendation == "" {
		t.Errorf("expected role and recommendation, got %+v", profile)
	}
	if profile.PredictionConfidence < 0.85 || profile.PredictionConfidence > 0.95 {
		t.Errorf("confidence out of range: %f", profile.PredictionConfidence)
	}

	rr = doRequest(t, srv, "GET", "/accounts/NO_SUCH/profile", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown account, got %d", rr.Code)
	}
}
