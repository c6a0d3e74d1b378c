// Package routecraft is an integration routing runtime. Callers declare
// independent routes — a source, an ordered pipeline of steps, and one
// or more terminal sinks — and a Context runs them concurrently,
// providing lifecycle, correlation, backpressure, per-message fault
// isolation, fan-out/fan-in and pluggable in-process pub/sub channels.
//
// A minimal route looks like:
//
//	ctx := routecraft.NewContext("demo", routecraft.NewLogger(slog.Default()))
//	err := routecraft.NewBuilder().
//		From(mySource).
//		TransformFunc(func(body any) (any, error) { return strings.ToUpper(body.(string)), nil }).
//		ToFunc(func(ex *routecraft.Exchange) error { log.Println(ex.Body); return nil }).
//		BuildInto(ctx)
//	ctx.Start()
//	<-ctx.Done()
package routecraft
