package telemetry

// Version reported by the control surface and traces. Overridden at
// build time with -ldflags.
var Version = "0.2.0"
