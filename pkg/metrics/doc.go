/*
Package metrics defines and registers the Prometheus metrics exposed by a
running MOZAIC process: reactor lifecycle (spawned, closed, live count),
link lifecycle, message dispatch by target selector, game lifecycle and
game-manager request latency, step-lock flush/timeout counts, and
transport endpoint connection counts.

Metrics are package-level prometheus.Collector values registered in
init(), following the same shape the broader reactor runtime's ambient
stack uses throughout: a Handler() for promhttp, and a Timer helper for
histogram observation.

Collector periodically samples point-in-time state (currently the
broker's live reactor count) that can't be updated incrementally from
the event that caused it; counters are incremented directly at their
call sites elsewhere in the module.
*/
package metrics
