/*
Package netcdf reads and writes the archive's netCDF datasets.

Files use the netCDF classic format, which keeps them readable without a C
library binding and lets datasets be decoded straight out of zip and tar
archives as byte slices. All variables share a single fixed time dimension;
timestamps are stored as seconds since the Unix epoch and decoded against
the time variable's units attribute, so files from GCWerks with other epoch
declarations decode too.

# Usage

Decoding a standard dataset:

	ds, err := netcdf.OpenBytes(raw)
	if err != nil {
		return err
	}
	rec, err := ds.Record()

Raw instrument files that predate the standard layout expose their
variables through the generic accessors instead:

	stdev, err := ds.Floats("mf_mean_stdev")
*/
package netcdf
