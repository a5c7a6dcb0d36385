package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv, err := Start(0, nil)
	if err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}
	defer srv.Stop(context.Background())

	RecordSearch("duckduckgo", OutcomeOK, 4)
	RecordSearch("google", OutcomeDisabled, 0)
	RecordFetch("html.duckduckgo.com", 202, "DuckDuckGo", 1500*time.Millisecond)
	StoredTotal.WithLabelValues("publication").Inc()

	port := srv.Addr()[strings.LastIndex(srv.Addr(), ":"):]
	resp, err := http.Get("http://127.0.0.1" + port + "/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`arwatch_engine_searches_total{engine="duckduckgo",outcome="ok"} 1`,
		`arwatch_engine_searches_total{engine="google",outcome="disabled"} 1`,
		`arwatch_engine_results_total{engine="duckduckgo"} 4`,
		`arwatch_fetch_requests_total{challenge="DuckDuckGo",host="html.duckduckgo.com",status="202"} 1`,
		`arwatch_fetch_duration_seconds_bucket`,
		`arwatch_stored_total{kind="publication"} 1`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
	if strings.Contains(output, `arwatch_engine_results_total{engine="google"}`) {
		t.Errorf("disabled engine must not report results")
	}
}
