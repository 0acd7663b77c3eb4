// Package adapter defines the Adapter capability interface implemented once per provider
// (bedrock, openai, google) and the helpers the implementations share.
//
// Every implementation follows the same pipeline: validate the argument bag, resolve credentials
// (failing with *generations.ConfigurationError before any network call), translate into the native
// request, call the SDK, convert the native response into a generations.RawResult and reshape it with
// generations.FormatToolResponse. Native failures are wrapped in *generations.UpstreamError with the SDK
// error kept reachable through errors.As.
package adapter
