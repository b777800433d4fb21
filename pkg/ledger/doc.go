/*
Package ledger keeps a durable record of batch runs in a BoltDB file.

Each run gets its own results bucket, with one JSON-encoded outcome per
unit keyed by the unit's stable key. The record survives a killed run, so
the outcome of every unit processed before the kill can still be inspected
after a restart; units themselves are idempotent and simply rerun.

At the end of a run the recorded failures are flushed to plain-text error
logs, one file for combined-product failures and one for per-instrument
failures, in the format long used by the archive: a processing-attempt
timestamp header followed by one "site species: error" line per failed
unit.
*/
package ledger
