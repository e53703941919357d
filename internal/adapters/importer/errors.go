package importer

import "errors"

// ErrBadHeader is returned when the CSV header lacks required columns.
var ErrBadHeader = errors.New("importer: bad csv header")
