// Package content implements the content-facing collaborators of the
// pipeline: fetching and parsing subscribed feeds, normalizing article
// HTML into clean text, and validating the image references an article
// carries.
package content
