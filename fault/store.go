package fault

import "errors"

var (
	ErrClosed             = errors.New("store is closed")
	ErrNotDocument        = errors.New("element is not a document")
	ErrNotSequence        = errors.New("element is not a sequence of documents")
	ErrNotNumeric         = errors.New("field is not numeric")
	ErrMissingCondition   = errors.New("operation requires a condition or identity list")
	ErrBucketCreateFailed = errors.New("bucket create failed")
	ErrUnmarshalFailed    = errors.New("unmarshal failed")
	ErrMarshalFailed      = errors.New("marshal failed")
	ErrPutFailed          = errors.New("put failed")
)
