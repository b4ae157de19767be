package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
)

type contributionResponse struct {
	ID                   string   `json:"id"`
	Contributor          string   `json:"contributor"`
	ProjectID            string   `json:"projectId"`
	Type                 string   `json:"type"`
	Description          string   `json:"description"`
	Timestamp            string   `json:"timestamp"`
	ParentContributionID *string  `json:"parentContributionId"`
	Tags                 []string `json:"tags"`
	Resonance            int      `json:"resonance"`
	Depth                int      `json:"depth"`
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func createContribution(t *testing.T, server testServer, body string) contributionResponse {
	t.Helper()
	recorder := server.do(http.MethodPost, "/contributions", body)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created contributionResponse
	decodeBody(t, recorder, &created)
	return created
}

func TestNewHTTPHandlerRequiresStore(testContext *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		testContext.Fatalf("expected error when store is missing")
	}
}

func TestCreateAndGetContribution(testContext *testing.T) {
	server := newTestServer(testContext)

	created := createContribution(testContext, server, `{"contributor":"  alice.eth ","projectId":"farcaster-frames-toolkit","type":"edit","description":"Fixed TypeScript type definitions","tags":"typescript, ,bug-fix"}`)
	if created.ID != "c-001" {
		testContext.Fatalf("expected generated id c-001, got %q", created.ID)
	}
	if created.Contributor != "alice.eth" || created.Type != "Edit" {
		testContext.Fatalf("expected normalized draft, got %+v", created)
	}
	if created.Timestamp != "2025-03-14T09:26:53.000Z" {
		testContext.Fatalf("unexpected timestamp %q", created.Timestamp)
	}
	if created.ParentContributionID != nil {
		testContext.Fatalf("expected null parent, got %q", *created.ParentContributionID)
	}
	if len(created.Tags) != 2 || created.Tags[1] != "bug-fix" || created.Resonance != 0 {
		testContext.Fatalf("unexpected tags or resonance: %+v", created)
	}

	recorder := server.do(http.MethodGet, "/contributions/c-001", "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
	var fetched contributionResponse
	decodeBody(testContext, recorder, &fetched)
	if fetched.Description != "Fixed TypeScript type definitions" {
		testContext.Fatalf("unexpected contribution %+v", fetched)
	}
}

func TestCreateContributionAcceptsTagArray(testContext *testing.T) {
	server := newTestServer(testContext)

	created := createContribution(testContext, server, `{"contributor":"bob","projectId":"p","description":"Reply to the parent edit","parentContributionId":"c-999","tags":[" ui ","","ui"]}`)
	if created.Type != "Comment" {
		testContext.Fatalf("expected default type Comment, got %q", created.Type)
	}
	if created.ParentContributionID == nil || *created.ParentContributionID != "c-999" {
		testContext.Fatalf("expected parent reference to be kept")
	}
	if len(created.Tags) != 2 || created.Tags[0] != "ui" || created.Tags[1] != "ui" {
		testContext.Fatalf("expected trimmed tags with duplicates kept, got %v", created.Tags)
	}
}

func TestCreateContributionRejectsInvalidDraft(testContext *testing.T) {
	server := newTestServer(testContext)

	recorder := server.do(http.MethodPost, "/contributions", `{"contributor":" ","projectId":"p","type":"Fork","description":"too short"}`)
	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request, got %d", recorder.Code)
	}
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeBody(testContext, recorder, &payload)
	if payload.Error != "invalid_contribution" {
		testContext.Fatalf("unexpected error code %q", payload.Error)
	}
	expected := map[string]string{
		"contributor": "Contributor name is required",
		"type":        "Type must be one of Comment, Edit, Remix, Suggestion",
		"description": "Description must be at least 10 characters",
	}
	if len(payload.Fields) != len(expected) {
		testContext.Fatalf("unexpected fields %v", payload.Fields)
	}
	for field, message := range expected {
		if payload.Fields[field] != message {
			testContext.Fatalf("field %s: expected %q, got %q", field, message, payload.Fields[field])
		}
	}
	if items := server.store.LoadAll(context.Background()); len(items) != 0 {
		testContext.Fatalf("expected nothing persisted, got %d items", len(items))
	}
}

func TestCreateContributionRejectsMalformedBodies(testContext *testing.T) {
	server := newTestServer(testContext)

	testCases := map[string]string{
		"not json":     `{"contributor":`,
		"numeric tags": `{"contributor":"a","projectId":"p","description":"long enough text","tags":42}`,
	}
	for name, body := range testCases {
		testContext.Run(name, func(subTest *testing.T) {
			recorder := server.do(http.MethodPost, "/contributions", body)
			if recorder.Code != http.StatusBadRequest {
				subTest.Fatalf("expected bad request, got %d", recorder.Code)
			}
			if recorder.Body.String() != `{"error":"invalid_request"}` {
				subTest.Fatalf("unexpected body %s", recorder.Body.String())
			}
		})
	}
}

func TestListContributionsFiltersByProjectAndType(testContext *testing.T) {
	server := newTestServer(testContext)
	createContribution(testContext, server, `{"contributor":"a","projectId":"alpha","type":"Edit","description":"first alpha edit"}`)
	createContribution(testContext, server, `{"contributor":"b","projectId":"beta","type":"Remix","description":"first beta remix"}`)
	createContribution(testContext, server, `{"contributor":"c","projectId":"alpha","type":"Comment","description":"alpha comment here"}`)

	testCases := []struct {
		name     string
		path     string
		expected []string
	}{
		{name: "all newest first", path: "/contributions", expected: []string{"c-003", "c-002", "c-001"}},
		{name: "project", path: "/contributions?project=alpha", expected: []string{"c-003", "c-001"}},
		{name: "project is exact", path: "/contributions?project=Alpha", expected: []string{}},
		{name: "empty project matches nothing", path: "/contributions?project=", expected: []string{}},
		{name: "type", path: "/contributions?type=remix", expected: []string{"c-002"}},
		{name: "project and type", path: "/contributions?project=alpha&type=Edit", expected: []string{"c-001"}},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(subTest *testing.T) {
			recorder := server.do(http.MethodGet, testCase.path, "")
			if recorder.Code != http.StatusOK {
				subTest.Fatalf("expected ok status, got %d", recorder.Code)
			}
			var payload struct {
				Contributions []contributionResponse `json:"contributions"`
			}
			decodeBody(subTest, recorder, &payload)
			if payload.Contributions == nil {
				subTest.Fatalf("expected a JSON array, got %s", recorder.Body.String())
			}
			if len(payload.Contributions) != len(testCase.expected) {
				subTest.Fatalf("expected %v, got %d items", testCase.expected, len(payload.Contributions))
			}
			for index, id := range testCase.expected {
				if payload.Contributions[index].ID != id {
					subTest.Fatalf("index %d: expected %s, got %s", index, id, payload.Contributions[index].ID)
				}
			}
		})
	}

	recorder := server.do(http.MethodGet, "/contributions?type=Fork", "")
	if recorder.Code != http.StatusBadRequest || recorder.Body.String() != `{"error":"invalid_type"}` {
		testContext.Fatalf("expected invalid_type, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestResonanceEndpoint(testContext *testing.T) {
	server := newTestServer(testContext)
	createContribution(testContext, server, `{"contributor":"a","projectId":"alpha","description":"resonant contribution"}`)

	testCases := []struct {
		name     string
		body     string
		expected int
	}{
		{name: "default delta", body: "", expected: 1},
		{name: "explicit delta", body: `{"delta":4}`, expected: 5},
		{name: "empty object uses default", body: `{}`, expected: 6},
		{name: "negative floors at zero", body: `{"delta":-100}`, expected: 0},
	}
	for _, testCase := range testCases {
		recorder := server.do(http.MethodPost, "/contributions/c-001/resonance", testCase.body)
		if recorder.Code != http.StatusOK {
			testContext.Fatalf("%s: expected ok status, got %d", testCase.name, recorder.Code)
		}
		var updated contributionResponse
		decodeBody(testContext, recorder, &updated)
		if updated.Resonance != testCase.expected {
			testContext.Fatalf("%s: expected resonance %d, got %d", testCase.name, testCase.expected, updated.Resonance)
		}
	}

	recorder := server.do(http.MethodPost, "/contributions/missing/resonance", `{"delta":1}`)
	if recorder.Code != http.StatusNotFound || recorder.Body.String() != `{"error":"not_found"}` {
		testContext.Fatalf("expected not_found, got %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = server.do(http.MethodPost, "/contributions/c-001/resonance", `{"delta":"many"}`)
	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request for non-numeric delta, got %d", recorder.Code)
	}
}

func TestChainAndDepthEndpoints(testContext *testing.T) {
	server := newTestServer(testContext)
	createContribution(testContext, server, `{"contributor":"alice","projectId":"p","type":"Edit","description":"root contribution"}`)
	createContribution(testContext, server, `{"contributor":"bob","projectId":"p","description":"reply to the root","parentContributionId":"c-001"}`)
	createContribution(testContext, server, `{"contributor":"alice","projectId":"p","type":"Remix","description":"remix of the reply","parentContributionId":"c-002"}`)

	recorder := server.do(http.MethodGet, "/contributions/c-003/chain", "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
	var chain struct {
		RootID  string                 `json:"root_id"`
		Nodes   []contributionResponse `json:"nodes"`
		Summary struct {
			Total        int `json:"total"`
			MaxDepth     int `json:"max_depth"`
			Contributors int `json:"contributors"`
		} `json:"summary"`
		SkippedEdges int `json:"skipped_edges"`
	}
	decodeBody(testContext, recorder, &chain)
	if chain.RootID != "c-001" || len(chain.Nodes) != 3 {
		testContext.Fatalf("unexpected chain %+v", chain)
	}
	for index, node := range chain.Nodes {
		if node.Depth != index {
			testContext.Fatalf("node %s: expected depth %d, got %d", node.ID, index, node.Depth)
		}
	}
	if chain.Summary.Total != 3 || chain.Summary.MaxDepth != 2 || chain.Summary.Contributors != 2 || chain.SkippedEdges != 0 {
		testContext.Fatalf("unexpected summary %+v skipped=%d", chain.Summary, chain.SkippedEdges)
	}

	recorder = server.do(http.MethodGet, "/contributions/unknown/chain", "")
	expected := `{"root_id":"","nodes":[],"summary":{"total":0,"max_depth":0,"contributors":0},"skipped_edges":0}`
	if recorder.Code != http.StatusOK || recorder.Body.String() != expected {
		testContext.Fatalf("unexpected empty chain response %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = server.do(http.MethodGet, "/contributions/c-003/depth", "")
	if recorder.Body.String() != `{"depth":2,"id":"c-003"}` {
		testContext.Fatalf("unexpected depth response %s", recorder.Body.String())
	}
	recorder = server.do(http.MethodGet, "/contributions/unknown/depth", "")
	if recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected not found for unknown depth, got %d", recorder.Code)
	}
}

func TestHandleGetReturnsNotFound(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	server := newTestServer(testContext)
	recorder := httptest.NewRecorder()
	context, _ := gin.CreateTestContext(recorder)
	context.Request = httptest.NewRequest(http.MethodGet, "/contributions/missing", http.NoBody)
	context.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler := &httpHandler{
		store:    server.store,
		realtime: NewRealtimeDispatcher(),
		logger:   zap.NewNop(),
	}

	handler.handleGet(context)

	if recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected not found status, got %d", recorder.Code)
	}
	expected := `{"error":"not_found"}`
	if recorder.Body.String() != expected {
		testContext.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestRespondServiceErrorUsesCode(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	context, _ := gin.CreateTestContext(recorder)

	handler := &httpHandler{logger: zap.NewNop()}
	_, err := contributions.NewStore(contributions.StoreConfig{})
	handler.respondServiceError(context, "failed", err)

	if recorder.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected internal error status, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "contributions.store.new.missing_storage") {
		testContext.Fatalf("expected service error code in body, got %s", recorder.Body.String())
	}
}

func TestMetricsEndpointCountsRequests(testContext *testing.T) {
	server := newTestServer(testContext)
	server.do(http.MethodGet, "/contributions/missing", "")

	recorder := server.do(http.MethodGet, "/metrics", "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, `contribcast_http_requests_total{method="GET",route="/contributions/:id",status="404"} 1`) {
		testContext.Fatalf("expected request counter in metrics output:\n%s", body)
	}
	if !strings.Contains(body, `contribcast_store_operations_total{operation="contributions.get_by_id",outcome="not_found"} 1`) {
		testContext.Fatalf("expected store operation counter in metrics output:\n%s", body)
	}
}
