package merk

import "github.com/hads-project/hads/errs"

// ErrPathKeyNotFound is returned by Apply's OpDelete when the targeted key
// does not exist. The whole Apply call is rejected rather than skipping the
// missing delete, so nothing is ever partially committed.
var ErrPathKeyNotFound = errs.New(errs.PathKeyNotFound, "merk: key not found")
