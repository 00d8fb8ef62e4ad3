// Package deid replaces real participant identifiers with synthetic
// user_<n> tokens before chat text leaves the process, and maps tokens in
// extracted topics back to real identifiers afterwards.
//
// A SpeakerMapping is built per chunk and is never shared between chunks.
// The forward direction uses the full mapping; the reverse direction only
// uses the tokens a topic actually references, so the recorded speakers of
// a topic are the people it talks about rather than everyone present.
//
// Text that already contains a literal "@user_<n>" passes through Anonymize
// unchanged. If the model repeats it, Deanonymize attributes it to whoever
// holds that token in the chunk.
package deid
