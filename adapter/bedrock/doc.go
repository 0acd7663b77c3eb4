// Package bedrock implements the bedrock provider on top of github.com/aws/aws-sdk-go-v2
// (bedrockruntime and polly). Native Claude bodies use the github.com/anthropics/anthropic-sdk-go wire types.
//
// Model names go through an alias table (ResolveModel). Generate picks one of three routes (Route):
//
//   - predefined tools (web_search_20250305, text_editor_20250429, bash_20250124, any tag with "_")
//     are sent as an Anthropic Messages body through InvokeModel;
//   - other tools use the Converse API with a tool configuration;
//   - Claude models asking for JSON output, or served through an inference profile, use InvokeModel
//     when the model is known. A response_schema becomes a forced tool whose input is the result.
//
// Everything else is a Converse chat with the system prompt folded into the user turn. Consecutive
// turns of the same role are merged. The native route cannot stream: GenerateStream delivers its
// buffered response as a single chunk.
//
// LLM uses the Claude text-completions body, Embed the Titan text model (one call per text),
// TextToSpeech Polly, and GenerateWithImage a Converse image block.
// Credentials: AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, optional AWS_SESSION_TOKEN and AWS_REGION.
package bedrock
