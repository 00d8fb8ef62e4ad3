// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder, MockTopicExtractor and MockProvider stand in for ai.Embedder,
// ai.TopicExtractor and ai.AIProvider. They are deterministic, record their
// inputs, and accept injected behavior, so ingestion and search can be
// tested without a model server.
//
//	extractor := mock.NewMockTopicExtractor().WithTopics(core.Topic{
//	    Subject: "Flights",
//	    Summary: "@user_1 booked the flight.",
//	})
//	embedder := mock.NewMockEmbedder()
//
//	// ... run the code under test ...
//
//	count := extractor.CallCount()
//
// By default MockEmbedder returns unit vectors derived from a hash of the
// text and MockTopicExtractor returns one topic summarizing the first line
// of the transcript.
package mock
