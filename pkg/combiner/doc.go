/*
Package combiner assembles the recommended long-term record for a species
at a site from the instrument epochs listed in the data combination table.

Station PIs nominate one instrument per time window, typically following
the station's deployment history from ALE through GAGE to the modern AGAGE
instruments. Combine reads each epoch through the normal reader pipeline,
cuts it to its window and concatenates the pieces into a single record
spanning decades. Overlapping windows are legitimate; duplicate timestamps
are resolved in favour of real measurements first and the earlier-deployed
instrument second. CombineBaseline builds the matching baseline flag record
over the same epochs.
*/
package combiner
