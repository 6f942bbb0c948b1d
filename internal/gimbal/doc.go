// Package gimbal positions a steerable sensor mount and drives the scan
// patterns it sweeps while searching.
//
// Gimbal is the servo: it integrates commanded rate or slews toward a
// commanded position within mechanical limits. ScanController owns the
// pattern state machine (bar, conical, circular, pseudo-random, spiral)
// and commands the gimbal once per Dynamics tick.
//
// Neither type is safe for concurrent mutation. The scheduler runs
// Dynamics in its own phase; sensors read the pointing in later phases.
package gimbal
