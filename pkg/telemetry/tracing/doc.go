// Package tracing provides OpenTelemetry tracing for keel.
//
// Spans cover one agent step, each gate evaluation, each tool execution
// and each project-memory write. Spans are exported over OTLP gRPC when
// telemetry.tracing.enabled is set; otherwise a noop tracer is used.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version.Version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "agent.step", tracing.ProjectAttr(pid))
//	defer func() { tracing.End(span, err) }()
//
// # Sampling
//
// The sampler is one of "always", "never" or "ratio", always wrapped in
// ParentBased so child spans follow their parent's decision.
package tracing
