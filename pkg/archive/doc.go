/*
Package archive abstracts the network data holdings and the published
output archive.

Raw instrument data ships in whatever layout a station provides: plain
directory trees, zip archives or gzipped tar bundles. Store gives all three
the same listing and reading interface, so readers never care which layout a
network uses. File patterns follow shell wildcard rules, with * also
crossing directory separators to match archive entry names like
"ch4/agage_cgo_ch4.nc".

The published archive is written through Writer, which appends datasets
under species sub-paths and reproduces the fixed output naming scheme via
OutputFilename. Zip output is serialized internally, but a batch run must be
the only writer of its archive.
*/
package archive
