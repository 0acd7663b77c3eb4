// Package gemini implements the google provider on top of google.golang.org/genai.
//
// Tools map as follows: google_search to GoogleSearch, code_execution to CodeExecution, function tools
// to one FunctionDeclarations tool. JSON mode sets the application/json response MIME type and, when a
// response_schema is given, a converted genai.Schema (array items default to strings).
// Embed sends every text in one EmbedContent call with task type RETRIEVAL_DOCUMENT.
package gemini
