package batch

import "errors"

var errShortBatchResponse = errors.New("batch: response shorter than submitted batch")
