// Package module defines deployment futures and the modules that group them.
//
// A module is a static DAG. Futures reference each other through Args; the
// referenced ids become dependency edges, so a future can only read results
// of futures it depends on. Construction rejects cycles and dangling
// references, and Graph.Order gives the deterministic execution order.
package module
