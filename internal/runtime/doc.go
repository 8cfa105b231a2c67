/*
Package runtime hosts the long-running side of pulseflow: a Watermill router
consuming the ingress topic from whichever transport the config selects.

# Service

NewService builds the transport through the transport registry, creates the
router and installs the middleware chain. Handlers are attached with
RegisterMessageHandler and Start runs the router together with any HTTP
servers registered on the service (push ingress, metrics, status API).

# Middleware

The default chain, outermost first:

  - correlation_id: stamps a ULID correlation id when missing
  - log_messages: debug logs each message and logs handler failures
  - tracer: one OpenTelemetry span per message
  - metrics: Watermill Prometheus router metrics, when enabled
  - poison_queue: publishes messages retry gave up on to the holding topic,
    only for transports without a native dead-letter area
  - retry: exponential backoff, skipping errors that report Permanent()
  - recoverer: turns handler panics into errors

# Status API

When the web UI is enabled the service serves /api/handlers with per-handler
counters and latency percentiles, /api/stages with the pipeline stage failure
counters and /healthz. CORS headers follow the configured origins.

# Sub-packages

config, errors, ids, jsoncodec, logging, metadata and metrics hold the
ambient pieces shared with the pipeline and the redrive worker.
*/
package runtime
