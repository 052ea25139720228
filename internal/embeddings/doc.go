// Package embeddings provides embedding generation via multiple providers.
//
// Supports FastEmbed (local ONNX), TEI (external service) and OpenAI
// (langchaingo) providers. NewProvider selects one at runtime; the
// wrappers in this package compose around any Provider:
//
//	p, _ := embeddings.NewProvider(cfg)
//	p = embeddings.NewInstrumented(p, cfg.Model, metrics)
//	p = embeddings.NewResilient(p, embeddings.BreakerConfig{Name: "embeddings"})
//	p = embeddings.NewBatcher(p, 64, 4)
//	p = embeddings.NewCachedQuery(p, cache, cfg.Model, logger)
//
// Every provider failure is reported as errdefs.ErrUpstream.
package embeddings
