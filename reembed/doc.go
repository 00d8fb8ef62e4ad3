// Package reembed recomputes the vector of every stored topic with the
// currently configured embedding model. Use it after switching models:
// vectors from different models are not comparable.
//
// Topics are visited in batches. Each batch is embedded with retry,
// normalized to unit length and written back; nothing else about a topic
// changes.
package reembed
