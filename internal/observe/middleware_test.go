package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup installs an in-memory tracer and returns metrics backed by a
// manual reader. Tests using it must not run in parallel.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// apiMux mirrors the shape of the service routes: a fixed POST endpoint, a
// wildcard GET and a probe.
func apiMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcribe", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	mux.HandleFunc("GET /api/transcripts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// captureLogs routes the default slog logger into a buffer for the test.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{name: "new trace"},
		{
			name:   "propagated traceparent",
			header: http.Header{"Traceparent": {"00-" + incoming + "-00f067aa0ba902b7-01"}},
			want:   incoming,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, _, _ := testSetup(t)

			var inCtx string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				inCtx = CorrelationID(r.Context())
			}))
			rec := serve(h, "POST", "/api/transcribe", tc.header)

			if len(inCtx) != 32 {
				t.Fatalf("correlation ID %q has length %d, want 32", inCtx, len(inCtx))
			}
			if tc.want != "" && inCtx != tc.want {
				t.Errorf("correlation ID = %q, want %q", inCtx, tc.want)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != inCtx {
				t.Errorf("X-Correlation-ID = %q, want %q", got, inCtx)
			}
			if rec.Header().Get("Traceparent") == "" {
				t.Error("traceparent not injected into response")
			}
		})
	}
}

func TestMiddleware_SpanCarriesRouteAndStatus(t *testing.T) {
	m, _, exp := testSetup(t)
	h := Middleware(m)(apiMux())

	rec := serve(h, "POST", "/api/transcribe", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "HTTP POST /api/transcribe" {
		t.Errorf("span name = %q", span.Name)
	}
	attrs := map[string]any{}
	for _, a := range span.Attributes {
		attrs[string(a.Key)] = a.Value.AsInterface()
	}
	if attrs["http.route"] != "POST /api/transcribe" {
		t.Errorf("http.route = %v", attrs["http.route"])
	}
	if attrs["http.response.status_code"] != int64(422) {
		t.Errorf("http.response.status_code = %v", attrs["http.response.status_code"])
	}
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m, reader, exp := testSetup(t)
	h := Middleware(m)(apiMux())

	for _, id := range []string{"a", "b", "c"} {
		serve(h, "GET", "/api/transcripts/"+id, nil)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "scribe.http.request.duration")
	if met == nil {
		t.Fatal("scribe.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1 shared by all IDs", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 3 {
		t.Errorf("count = %d, want 3", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "GET /api/transcripts/{id}" {
		t.Errorf("path attribute = %q", v.AsString())
	}
	if got := exp.GetSpans()[0].Name; got != "HTTP GET /api/transcripts/{id}" {
		t.Errorf("span name = %q", got)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m, reader, exp := testSetup(t)
	h := Middleware(m)(apiMux())

	if rec := serve(h, "GET", "/nowhere", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	hist := findMetric(rm, "scribe.http.request.duration").Data.(metricdata.Histogram[float64])
	if v, _ := hist.DataPoints[0].Attributes.Value("path"); v.AsString() != "unmatched" {
		t.Errorf("path attribute = %q, want unmatched", v.AsString())
	}
	if got := exp.GetSpans()[0].Name; got != "HTTP unmatched" {
		t.Errorf("span name = %q", got)
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	m, _, _ := testSetup(t)
	logs := captureLogs(t, slog.LevelInfo)
	h := Middleware(m)(apiMux())

	serve(h, "GET", "/healthz", nil)
	if strings.Contains(logs.String(), "request completed") {
		t.Errorf("probe logged at info level: %s", logs)
	}

	serve(h, "GET", "/api/transcripts/x", nil)
	out := logs.String()
	if !strings.Contains(out, "request completed") || !strings.Contains(out, "path=/api/transcripts/x") {
		t.Errorf("api request not logged: %s", out)
	}
}

func TestMiddleware_ExposesUnderlyingWriter(t *testing.T) {
	m, _, _ := testSetup(t)

	var flushErr error
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		flushErr = http.NewResponseController(w).Flush()
	}))
	rec := serve(h, "GET", "/stream", nil)

	if flushErr != nil {
		t.Fatalf("Flush through middleware: %v", flushErr)
	}
	if !rec.Flushed {
		t.Error("recorder was not flushed")
	}
}
