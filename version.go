package eventkernel

// InstrumentationVersion is reported by the otel middleware as the instrumentation scope version.
const InstrumentationVersion = "v0.3.0"
