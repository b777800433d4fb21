/*
Package selection parses the data selection tables that steer a release:
which species and site pairs each instrument publishes and until what date
(release schedules), which instrument covers which window of a combined
record (data combination), and which stretches of data the station PIs have
flagged as bad (data exclusion).

The tables are CSV worksheets exported from the network's data selection
spreadsheets. Leading "#" lines carry sheet metadata, of which only the
general release date is meaningful:

	# GENERAL RELEASE DATE: 2025-01-31

Schedule cells left empty inherit that date, and cells marked "x" withhold
the species and site pair entirely.
*/
package selection
