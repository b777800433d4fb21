/*
Package reader reads raw measurement data into canonical records, one per
species, site and instrument.

Four raw formats feed the archive. Modern AGAGE instruments arrive as
GCWerks netCDF exports. The precursor ALE and GAGE networks and the GCMS
Magnum instrument at Mace Head survive as fixed-width text files processed
by Georgia Tech, bundled into tar.gz archives per site; their layout is
self-describing through an embedded Fortran format code. Medusa flask
samples arrive as netCDF with per-species variable names.

Whatever the source, a read produces a timeseries.Record on a UTC time
grid with timestamps marking the start of each sampling period, filtered
against the release schedule and exclusion tables and converted to the
network's default calibration scale unless the caller asks otherwise.
ReadBaseline yields the matching baseline flag as a record of its own.

Readers share one Reader per network, which caches the attribute and
selection tables behind the data:

	r, err := reader.New(paths)
	if err != nil {
		return err
	}
	rec, err := r.Read("ch3ccl3", "CGO", "GCMD", reader.Options{})
*/
package reader
