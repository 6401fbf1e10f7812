/*
Package metrics provides Prometheus metrics and health endpoints for burrow.

Every collector is registered with the default registry at package init and
exposed on /metrics by Handler. The broker and watcher packages update the
collectors directly; no polling collector is needed because all state
changes happen on the broker's request loop.

# Metrics

Registry:
  - burrow_subscriptions_active (gauge)
  - burrow_registrations_total{result} (ok, invalid_payload, alloc_failed, watch_failed)
  - burrow_unregistrations_total{cause} (unregister, process_exit, shutdown)

Delivery:
  - burrow_delivery_passes_total{result} (ok, invalid_payload)
  - burrow_deliveries_total{result} (sent, failed)
  - burrow_delivery_pass_duration_seconds (histogram)

Requests and watchers:
  - burrow_requests_total{op}
  - burrow_request_duration_seconds{op} (histogram)
  - burrow_watchers_active (gauge)
  - burrow_watch_events_total{outcome} (posted, dropped, ignored, overflow)

# Health

The health checker tracks named components. /health is unhealthy when any
registered component is unhealthy; /ready additionally requires the
"broker" and "watch" components to be registered. NewMux wires /health,
/ready, /live and /metrics together and Serve runs them until the context
is cancelled:

	metrics.RegisterComponent("broker", true, "")
	go metrics.Serve(ctx, "127.0.0.1:9464")

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DeliveryPassDuration)
*/
package metrics
