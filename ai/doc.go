// Package ai provides abstractions for the model services tripkb depends on.
//
// Two capabilities are modeled, each as a single-method interface so that
// segmentation, de-identification and storage never depend on a concrete
// model:
//
//   - Embedder: turns topic documents into vectors
//   - TopicExtractor: turns a de-identified transcript into topics
//
// AIProvider bundles both behind one lifecycle.
//
// The ai/openai package implements them against OpenAI-compatible servers
// (OpenAI, Ollama, vLLM). The ai/mock package provides deterministic test
// doubles with injectable behavior.
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithHost(host)))
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	topics, err := provider.TopicExtractor().ExtractTopics(ctx, transcript)
package ai
