// Package ingestion turns new group messages into stored topics.
//
// A Scheduler run visits every managed group. For each group it loads the
// messages since the group's watermark, segments them into chunks, and
// processes the chunks strictly in order: de-identify, extract topics,
// re-identify, embed, and persist the chunk together with the advanced
// watermark in one transaction. Groups run concurrently on a bounded
// worker pool. Extraction and embedding calls are retried with backoff; a
// group whose retries run out stops at the failing chunk and is retried on
// the next run.
package ingestion
