// Package dispatch is the single entry point over the provider adapters.
//
// A Client holds one adapter per provider and picks it with a switch over the closed provider set.
// Every operation validates its argument bag, rejects operations the provider does not support with
// *generations.UnsupportedError before any network call, and then delegates. Calls are logged with
// log/slog (Debug on start and finish, Error on failure) under a uuid request id and traced with an
// OpenTelemetry span named generations.<operation>.
//
//	c := dispatch.New(dispatch.WithLogger(logger))
//	resp, err := c.Generate(ctx, generations.ProviderOpenAI, &generations.GenerateRequest{Message: "Hi"})
package dispatch
