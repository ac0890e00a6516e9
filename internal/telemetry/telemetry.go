// Package telemetry provides OpenTelemetry metrics for draftd.
//
// Telemetry is disabled by default (zero runtime overhead when off).
//
// # Configuration
//
//	DRAFTD_OTEL_ENABLED=true   enable metrics (default: off)
//	DRAFTD_OTEL_STDOUT=true    write metrics to stderr (dev mode)
//	OTEL_SERVICE_NAME=draftd   override service name
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/draftboard/draftboard"

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry is active (DRAFTD_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("DRAFTD_OTEL_ENABLED") == "true"
}

// Init configures the OTel meter provider. When DRAFTD_OTEL_ENABLED is not
// "true" this installs a no-op provider and returns immediately.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	var opts []sdkmetric.Option
	opts = append(opts, sdkmetric.WithResource(res))

	if os.Getenv("DRAFTD_OTEL_STDOUT") == "true" {
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

// Shutdown flushes and stops every installed provider.
func Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range shutdownFns {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	shutdownFns = nil
	return firstErr
}

// Meter returns a named meter from the global provider.
func Meter(scope string) metric.Meter {
	if scope == "" {
		scope = instrumentationScope
	}
	return otel.Meter(scope)
}
