package engine

import "errors"

// Sentinel errors classifying the outcomes the Execution Engine itself can
// always distinguish with certainty (spec.md §7). They are an
// internal/host-side-API-only addition: the public ExecuteResult.Error
// field the guest ultimately observes is always a plain string, never one
// of these wrapped values. Host code can errors.Is(result.Err, ErrTimeout)
// (etc.) against ExecuteResult's unexported-to-JSON Err field.
//
// Sub-kinds of a guest-side rejection (tool not found, a before/success/error
// callback failing, an unrecovered handler error) are deliberately not given
// their own sentinels: the Tool Bridge flattens all of them into a single
// opaque JS Error before the guest's promise ever rejects, so by the time
// the Engine observes the rejection it cannot tell those cases apart from
// the guest's own `throw` — ErrGuestThrow covers that entire class.
var (
	ErrCompile      = errors.New("compile error")
	ErrGuestThrow   = errors.New("guest-visible rejection")
	ErrTimeout      = errors.New("execution timed out")
	ErrTruncated    = errors.New("result truncated")
	ErrHostInternal = errors.New("host internal error")
)
