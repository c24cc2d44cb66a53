package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/danmuck/rconbridge/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordCommand("move_player", "published", 3*time.Millisecond)
	RecordConsoleSend("ok", time.Millisecond)
	RecordConsoleDial(false)
	RecordSnapshotPoll("unchanged")

	before := testutil.ToFloat64(snapshotPublishes.WithLabelValues("suppressed"))
	RecordSnapshotPublish("suppressed")
	if got := testutil.ToFloat64(snapshotPublishes.WithLabelValues("suppressed")); got != before+1 {
		t.Fatalf("suppressed counter: got %v want %v", got, before+1)
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop()), RequestMetricsMiddleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/items/:id", "204"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/items/:id", "204")); got != before+1 {
		t.Fatalf("request counter: got %v want %v", got, before+1)
	}
}

func TestMiddlewareLabelsUnmatchedAndLogsAdminComponent(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)), RequestMetricsMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")); got != before+1 {
		t.Fatalf("unmatched counter: got %v want %v", got, before+1)
	}

	line := buf.String()
	for _, want := range []string{`"component":"admin"`, `"route":"unmatched"`, `"status":404`, `"level":"warn"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}
