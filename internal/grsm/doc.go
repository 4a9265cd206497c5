/*
Grsm implements the global risk state manager: the order admission engine.

# Module
  - state manager: simulate, evaluate, commit orders against the ledger
  - lifecycle: INIT -> NORMAL -> EMERGENCY -> SHUTDOWN with operator-only clear
  - circuit breaker: freezes intake when used margin breaches the ratio
  - router: batch admission seam in front of the manager

# Source
 1. orders from the batch accumulator or direct callers
 2. recovered state from the event log and snapshots

# Produce
  - log entries to the event log
  - commit and emergency events to the bus

# Sharded
  - none
*/
package grsm
