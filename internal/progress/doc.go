// Package progress provides the run snapshot type, the non-blocking hub, and
// the emitter interface the persistence writer uses to report progress. The
// hub keeps the newest snapshot of each run and periodically fans it out to
// pluggable sinks such as Prometheus gauges, structured logs, or the status
// endpoint.
package progress
