/*
Package instrument assigns stable numeric codes to instrument names and
answers instrument-level questions: which raw data folder serves an
instrument, and whether its data needs block averaging.

Codes come from the sorted enumeration of a network's release schedule
files, so rebuilding an archive from the same configuration always tags
samples identically. The registry is built once per run, before any unit is
processed, and is read-only afterwards.
*/
package instrument
