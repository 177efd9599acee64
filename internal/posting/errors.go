package posting

import "errors"

var errNoCOAValidator = errors.New("posting: chart of accounts validator not configured")
