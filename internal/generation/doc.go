// Package generation provides interfaces and implementations for interacting
// with external AI/LLM services for embedding. It abstracts the details of
// LLM API integration (Gemini), allowing the pipeline to embed article
// content without coupling to specific external services.
package generation
