// Package runner drives batch archival runs for one network. It walks the
// combined and individual units the network's selection tables define,
// reads each unit through the reader and combiner packages, writes the
// published files into the output archive and records every outcome in the
// run ledger.
//
// Unit failures are contained: a failing species, site or instrument is
// recorded and the batch carries on, so one bad input file never blocks a
// release. Failures surface at the end of the run through the ledger error
// logs and the process exit summary.
package runner
