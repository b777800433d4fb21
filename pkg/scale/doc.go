// Package scale converts mole fraction records between calibration scales.
//
// Calibration scales (SIO-93, SIO-98, SIO-05, TU-87 and friends) relate the
// instrument response to an absolute amount of substance. Published factors
// between consecutive scales are stored as TO/FROM ratio columns in a
// conversion table; this package chains those factors so any two scales
// connected through the table can be converted between, in either direction.
package scale
