package service

import "errors"

// ErrConfigInvalid is wrapped by PolicyEngine construction errors: a bad
// regex, an unknown preset name, or a malformed rule. Config loading is
// expected to fail fast on this error rather than start with a partial
// rule set.
var ErrConfigInvalid = errors.New("policy config invalid")
