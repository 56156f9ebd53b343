package protocol

import "errors"

// ErrInconsistentState marks parties that disagree on bidder IDs or on an
// opened value. The current auction cannot continue and parties need a reset.
var ErrInconsistentState = errors.New("inconsistent state across parties")
