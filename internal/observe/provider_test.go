package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestInitProvider_ServesMetrics(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	tel, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider() error: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	m.RecordMatch(context.Background(), true)

	rec := httptest.NewRecorder()
	tel.MetricsHandler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"facetalk_qa_matches", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestInitProvider_Twice(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	for range 2 {
		tel, err := InitProvider(context.Background(), ProviderConfig{})
		if err != nil {
			t.Fatalf("InitProvider() error: %v", err)
		}
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	}
}

func TestNewResource_MergesWithSDKDefaults(t *testing.T) {
	t.Parallel()

	res, err := newResource(ProviderConfig{ServiceName: "facetalk", ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("newResource() error: %v", err)
	}
	if got, want := res.SchemaURL(), resource.Default().SchemaURL(); got != want {
		t.Errorf("SchemaURL() = %q, want the SDK default %q", got, want)
	}
	want := map[attribute.Key]string{
		semconv.ServiceNameKey:    "facetalk",
		semconv.ServiceVersionKey: "1.2.3",
	}
	for key, val := range want {
		got, ok := res.Set().Value(key)
		if !ok || got.AsString() != val {
			t.Errorf("resource[%s] = %q (present %v), want %q", key, got.AsString(), ok, val)
		}
	}
}
