package engine

import "errors"

var errNoCatalog = errors.New("no rule catalog loaded")
