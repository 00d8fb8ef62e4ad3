// Package chunking splits a group's message history into bounded,
// overlapping conversation chunks for topic extraction.
//
// Segmentation runs in four passes: gap split, merge of small segments,
// split of large segments, and overlap. Each pass is deterministic so the
// same history always yields the same chunks and therefore the same topic
// identifiers downstream.
package chunking
