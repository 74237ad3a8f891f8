// Package econ is the economic calculation engine: deterministic, pure
// functions turning per-faction indicators into prices, exchange rates,
// inflation, and trade outcomes.
//
// No function here performs I/O or keeps state; history (previous CPI,
// previous money supply) is always supplied by the caller. Out-of-range
// numeric input is clamped or guarded internally so a single faction's
// pathological values can never abort a tick.
package econ
