// Package logging provides structured logging for tenantrag.
//
// The package wraps Zap with:
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic context fields (trace_id, request.id, tenant)
//   - Field and pattern based secret redaction
//   - Level-aware sampling (errors are never sampled)
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTenant(ctx, token)
//	logger.Info(ctx, "document ingested", zap.String("filename", name))
//
// Components that only need a *zap.Logger receive logger.Underlying().
//
// # Testing
//
// NewTestLogger records every entry in memory:
//
//	tl := logging.NewTestLogger()
//	svc := ingest.NewPipeline(..., tl.Underlying())
//	tl.AssertLogged(t, zapcore.InfoLevel, "document ingested")
//	tl.AssertNoSecrets(t)
package logging
