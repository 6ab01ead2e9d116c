// Package wirefmt formats values for verbose diagnostic logging. It
// generalizes the teacher's raweni.ReadEtherCATInfo, which dumped a failed
// XML decode with spew.Dump(err) before returning; here the same dump is
// attached as a structured log field instead of printed to stdout, for a
// discovery or state-transition failure a caller wants to inspect without
// re-running against real hardware.
package wirefmt

import "github.com/davecgh/go-spew/spew"

var config = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Dump renders v the way spew.Dump would, as a string suitable for a
// logrus field value rather than direct stdout output.
func Dump(v interface{}) string {
	return config.Sdump(v)
}
