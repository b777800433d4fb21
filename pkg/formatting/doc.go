// Package formatting normalizes the names that flow through the pipeline:
// species aliases onto canonical lower-case names (and back onto the
// spellings GCWerks, flask and Magnum sources use), calibration scale and
// unit spellings, global attribute names, and the assembled comment and
// provenance attributes of combined datasets.
package formatting
