package wire

import (
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/guyvdb/docstore/dyno"
	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
)

// Mode selects what a request asks the server to do.
type Mode string

const (
	ModeRun     Mode = "run"
	ModeExec    Mode = "exec"
	ModeReadAll Mode = "readall"
	ModeLock    Mode = "lock"
	ModeUnlock  Mode = "unlock"
)

// Request is a client message. For ModeRun, DB and Func name the collection
// and operation; the operation's input is either InsertItem or the four
// query sequences. Kwargs carries options such as "eids" or the fields of an
// update.
type Request struct {
	Mode       Mode           `json:"mode"`
	DB         string         `json:"db,omitempty"`
	Func       string         `json:"func,omitempty"`
	InsertItem []any          `json:"insert_item,omitempty"`
	Index      [][]string     `json:"index,omitempty"`
	Operation  []string       `json:"operation,omitempty"`
	Args       []any          `json:"args,omitempty"`
	Connection []string       `json:"connection,omitempty"`
	UpdateOp   string         `json:"update_op,omitempty"`
	Kwargs     map[string]any `json:"kwargs,omitempty"`
	Command    string         `json:"command,omitempty"`
}

// Query returns the serialized predicate carried by r.
func (r *Request) Query() QueryInfo {
	return QueryInfo{Entry: r.Index, Op: r.Operation, Args: r.Args, Connection: r.Connection}
}

// SetQuery stores q in r.
func (r *Request) SetQuery(q QueryInfo) {
	r.Index = q.Entry
	r.Operation = q.Op
	r.Args = q.Args
	r.Connection = q.Connection
}

// Response is the tagged result/error union returned for every request.
type Response struct {
	OK     bool              `json:"ok"`
	Result gojson.RawMessage `json:"result,omitempty"`
	Error  *Error            `json:"error,omitempty"`
}

// Success encodes v as the result of a response.
func Success(v any) (*Response, error) {
	data, err := gojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrMarshalFailed, err)
	}
	return &Response{OK: true, Result: data}, nil
}

// Failure wraps err in a response.
func Failure(err error) *Response {
	return &Response{Error: FromError(err)}
}

// Decode unmarshals the result into v, or returns the carried error.
func (r *Response) Decode(v any) error {
	if !r.OK {
		if r.Error == nil {
			return NewError(CodeInternal, "response carries neither result nor error")
		}
		return r.Error
	}
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	if err := gojson.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("%w: %w", fault.ErrUnmarshalFailed, err)
	}
	return nil
}

// LockResult answers lock and unlock requests. URI is the exclusive
// endpoint clients reconnect to while the server is locked.
type LockResult struct {
	Locked bool   `json:"locked"`
	URI    string `json:"uri,omitempty"`
}

// Error codes.
const (
	CodeInvalidQuery      = "invalid_query"
	CodeUnknownFunc       = "unknown_func"
	CodeUnknownCollection = "unknown_collection"
	CodeUnknownMode       = "unknown_mode"
	CodeInvalidArgument   = "invalid_argument"
	CodeBackend           = "backend"
	CodeReadOnly          = "read_only"
	CodeExecDisabled      = "exec_disabled"
	CodeInvalidMessage    = "invalid_message"
	CodeLocked            = "locked"
	CodeInternal          = "internal"
)

// Error is the error half of a response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail holds diagnostics such as a stack trace. Servers only fill it
	// in debug mode.
	Detail string `json:"detail,omitempty"`
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return t.Message != "" && e.Message == t.Message
}

var codes = []struct {
	err  error
	code string
}{
	{fault.ErrEmptyPath, CodeInvalidQuery},
	{fault.ErrUnknownOperator, CodeInvalidQuery},
	{fault.ErrUnknownConnection, CodeInvalidQuery},
	{fault.ErrInconsistentQuery, CodeInvalidQuery},
	{fault.ErrMissingLeaf, CodeInvalidQuery},
	{fault.ErrInvalidRegex, CodeInvalidQuery},
	{fault.ErrInvalidOperand, CodeInvalidQuery},
	{fault.ErrUnsupportedNesting, CodeInvalidQuery},
	{fault.ErrUnknownFunc, CodeUnknownFunc},
	{fault.ErrUnknownCollection, CodeUnknownCollection},
	{fault.ErrUnknownMode, CodeUnknownMode},
	{fault.ErrExecDisabled, CodeExecDisabled},
	{fault.ErrReadOnly, CodeReadOnly},
	{fault.ErrInvalidMessage, CodeInvalidMessage},
	{fault.ErrAlreadyLocked, CodeLocked},
	{fault.ErrUnknownUpdateOp, CodeInvalidArgument},
	{fault.ErrNotDocument, CodeInvalidArgument},
	{fault.ErrNotSequence, CodeInvalidArgument},
	{fault.ErrNotNumeric, CodeInvalidArgument},
	{fault.ErrMissingCondition, CodeInvalidArgument},
	{fault.ErrInvalidIdFormat, CodeInvalidArgument},
	{fault.ErrInvalidId, CodeInvalidArgument},
}

// FromError converts err into an *Error. Errors that are not protocol or
// argument errors are reported as backend failures.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return NewError(c.code, err.Error())
		}
	}
	return NewError(CodeBackend, err.Error())
}

// ParseUpdateOp turns an update_op name and its options into a store
// update. An empty name with a "fields" option is a plain field update.
//
//	increment, decrement  field (required), by (default 1)
//	delete
//	set, merge            fields (required)
func ParseUpdateOp(name string, kwargs map[string]any) (store.UpdateOp, error) {
	switch name {
	case "increment", "decrement":
		field, ok := kwargs["field"].(string)
		if !ok || field == "" {
			return store.UpdateOp{}, fmt.Errorf("%w: %s requires a field", fault.ErrUnknownUpdateOp, name)
		}
		by := 1.0
		if v, found := kwargs["by"]; found {
			n, ok := dyno.Number(v)
			if !ok {
				return store.UpdateOp{}, fmt.Errorf("%w: by must be numeric", fault.ErrNotNumeric)
			}
			by = n
		}
		if name == "increment" {
			return store.Increment(field, by), nil
		}
		return store.Decrement(field, by), nil
	case "delete":
		return store.Delete(), nil
	case "", "set", "merge":
		fields, ok := kwargs["fields"].(map[string]any)
		if !ok {
			if name == "" {
				return store.UpdateOp{}, fmt.Errorf("%w: update needs update_op or fields", fault.ErrUnknownUpdateOp)
			}
			return store.UpdateOp{}, fmt.Errorf("%w: %s requires fields", fault.ErrUnknownUpdateOp, name)
		}
		if name == "merge" {
			return store.Merge(fields), nil
		}
		return store.Set(fields), nil
	}
	return store.UpdateOp{}, fmt.Errorf("%w: '%s'", fault.ErrUnknownUpdateOp, name)
}

// EncodeUpdateOp is the inverse of ParseUpdateOp, used by clients.
func EncodeUpdateOp(op store.UpdateOp) (string, map[string]any) {
	switch op.Kind {
	case store.UpdateIncrement, store.UpdateDecrement:
		return op.Kind.String(), map[string]any{"field": op.Field, "by": op.By}
	case store.UpdateDelete:
		return op.Kind.String(), map[string]any{}
	}
	return op.Kind.String(), map[string]any{"fields": map[string]any(op.Fields)}
}
