// Package gemini implements the generation.EmbeddingGenerator interface
// using Google's Gemini API.
package gemini
