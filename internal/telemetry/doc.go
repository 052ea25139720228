// Package telemetry wires OpenTelemetry trace and metric providers for ragd.
//
// Telemetry is disabled by default. When enabled, spans and metrics are
// exported over OTLP (grpc or http/protobuf) and the providers are installed
// globally, so packages that call otel.Tracer / otel.Meter pick them up:
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Failures while building exporters do not stop the service; the instance
// reports itself as degraded and the global no-op providers stay in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
