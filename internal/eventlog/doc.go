/*
Eventlog records committed orders in Write Append Log way.

# Module
  - log: synchronous durable append of JSON-line entries across rotated segments
  - snapshot store: timestamped immutable ledger snapshots, latest by name order

# Source
  - committed orders from the state manager

# Produce
  - ordered entries and snapshots to the replay engine

# Sharded
  - none
*/
package eventlog
