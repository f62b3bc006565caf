// Package gemini implements generation.Provider on the Vertex AI
// generateContent API using google.golang.org/genai.
//
// Requests carry the input image (when there is one) followed by the text
// prompt, with fixed generation and safety settings. Calls answered with
// HTTP 429 are retried after fixed waits; every other failure is returned at
// once with the upstream status attached as a *generation.HTTPStatusError.
// Responses are flattened into a generation.RawResponse for the normalizer.
package gemini
