// Package openai implements the openai provider on top of github.com/openai/openai-go/v3.
//
// Generate and GenerateStream use Chat Completions. JSON mode and response_schema bind a JSON Schema
// response format; without a schema the {response: string} object named "json_response" is used.
// Function tools become chat tools; builtin tools (google_search, web_search_20250305, ...) are dropped.
// Embed uses the Embeddings API. Image, raw LLM and speech operations are unsupported.
//
// SDK retries are disabled: native failures surface at once as *generations.UpstreamError.
package openai
