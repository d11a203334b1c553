// Package pipeline implements the ingestion pipeline's stage schedulers:
// the job handlers that drive each content item through normalization,
// embedding, and cross-referencing, the trigger API used by the HTTP
// layer, and the reconciliation scanner that re-drives items whose
// forward chain was dropped.
//
// Each stage handler follows the same shape: acquire the item's lease,
// wait for a rate-limit slot against the stage's remote host, invoke the
// stage collaborator, and record the outcome on the item. Transient
// failures requeue the job with backoff; permanent failures and
// exhausted retries mark the stage failed. A lost lease race or a
// missing item is a clean drop, not an error. Stage success enqueues the
// next stage's job, and the reconciler covers the case where that
// enqueue is lost.
package pipeline
