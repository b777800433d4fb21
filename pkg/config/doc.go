/*
Package config reads config.yaml and resolves per-network data paths.

The config file names the user, optionally the data directory, and one paths
table per network. Each table entry is a sub-path relative to data/<network>
and may point at a directory, a .zip archive or a .tar.gz archive. Entries
whose data are split by site map site codes to sub-paths instead of holding a
single string:

	user:
	  name: mrg
	paths:
	  agage:
	    md_path: data-nc
	    optical_path: data-optical-nc
	    gcms_path: data-gcms-nc
	    gcms_flask_path: data-gcms-flask-nc
	    ale_path: ale_gage_sio1993/ale
	    gage_path: ale_gage_sio1993/gage
	    magnum_path: data-gcms-magnum.tar.gz
	    output_path: agage-public-archive.zip

Missing networks, missing keys and unresolvable per-site entries all surface
as configuration errors so a batch run fails before any unit is processed.
*/
package config
