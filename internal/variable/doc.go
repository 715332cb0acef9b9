// Package variable models meteorological variables as the archive stores them.
//
// A variable is identified by a Varcode (WMO table B descriptor, e.g. B12101
// for air temperature). The Vartable dictionary resolves a code to its
// Varinfo: type, decimal scale, unit and description. A Var holds one typed
// value plus an ordered list of attribute variables (quality flags,
// confidence, ...).
//
// # Value representation
//
// Integer and decimal variables keep a fixed-point int32. For decimals the
// represented value is raw / 10^scale, so B12101 (scale 2) stores 273.15 K as
// 27315. The raw integer is what the codec writes and what the archive keeps
// in its value column, which guarantees exact round trips.
//
// # Usage
//
//	table := variable.DefaultVartable()
//	v, err := table.NewVar("B12101", 273.15)
//	if err != nil {
//	    return err
//	}
//	conf, _ := table.NewVar("B33007", 70)
//	v.SetAttr(conf)
package variable
