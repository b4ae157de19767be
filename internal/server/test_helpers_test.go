package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/storage/memory"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("c-%03d", s.next), nil
}

type testServer struct {
	store      *contributions.Store
	handler    http.Handler
	dispatcher *RealtimeDispatcher
	collector  *metrics.Collector
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	collector := metrics.NewCollector("contribcast")
	store, err := contributions.NewStore(contributions.StoreConfig{
		Storage:    memory.New(),
		Clock:      func() time.Time { return fixedNow },
		IDProvider: &sequentialIDs{},
		Logger:     zap.NewNop(),
		Recorder:   collector,
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Store:             store,
		Logger:            zap.NewNop(),
		Realtime:          dispatcher,
		Metrics:           collector,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{store: store, handler: handler, dispatcher: dispatcher, collector: collector}
}

func (s testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}
