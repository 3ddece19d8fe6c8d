package osserr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
)

// Kind is the coarse category of a storage failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindPermissionDenied
	KindTransient
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindPermissionDenied:
		return "permission_denied"
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error wraps a backend or local failure with its operation and kind.
// The original error stays reachable through Unwrap.
type Error struct {
	Op   string
	Kind Kind
	Code string // S3 error code, when the backend returned one
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// S3 error codes grouped by kind.
var codeKinds = map[string]Kind{
	"NoSuchBucket":                 KindNotFound,
	"NoSuchKey":                    KindNotFound,
	"NotFound":                     KindNotFound,
	"NoSuchUpload":                 KindNotFound,
	"NoSuchLifecycleConfiguration": KindNotFound,
	"NoSuchTagSet":                 KindNotFound,
	"NoSuchVersion":                KindNotFound,

	"BucketAlreadyOwnedByYou": KindAlreadyExists,
	"BucketAlreadyExists":     KindAlreadyExists,

	"InvalidArgument":                   KindInvalidArgument,
	"InvalidBucketName":                 KindInvalidArgument,
	"InvalidPartOrder":                  KindInvalidArgument,
	"EntityTooSmall":                    KindInvalidArgument,
	"EntityTooLarge":                    KindInvalidArgument,
	"MalformedXML":                      KindInvalidArgument,
	"MalformedACLError":                 KindInvalidArgument,
	"InvalidRequest":                    KindInvalidArgument,
	"InvalidTag":                        KindInvalidArgument,
	"InvalidEncryptionAlgorithmError":   KindInvalidArgument,
	"AuthorizationQueryParametersError": KindInvalidArgument,
	"KeyTooLongError":                   KindInvalidArgument,

	"AccessDenied":          KindPermissionDenied,
	"Forbidden":             KindPermissionDenied,
	"InvalidAccessKeyId":    KindPermissionDenied,
	"SignatureDoesNotMatch": KindPermissionDenied,
	"ExpiredToken":          KindPermissionDenied,
	"AllAccessDisabled":     KindPermissionDenied,

	"InvalidPart":        KindConflict,
	"BucketNotEmpty":     KindConflict,
	"OperationAborted":   KindConflict,
	"PreconditionFailed": KindConflict,

	"InternalError":      KindTransient,
	"ServiceUnavailable": KindTransient,
	"SlowDown":           KindTransient,
	"RequestTimeout":     KindTransient,
}

type httpStatusError interface {
	HTTPStatusCode() int
}

// Classify returns the kind of err without wrapping it.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if k, ok := codeKinds[apiErr.ErrorCode()]; ok {
			return k
		}
	}
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		if k := statusKind(statusErr.HTTPStatusCode()); k != KindUnknown {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

func statusKind(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusForbidden, status == http.StatusUnauthorized:
		return KindPermissionDenied
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return KindConflict
	case status == http.StatusBadRequest:
		return KindInvalidArgument
	case status >= 500:
		return KindTransient
	}
	return KindUnknown
}

// Code returns the S3 error code carried by err, or "".
func Code(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Wrap annotates err with op and its classified kind. Wrap(op, nil) is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Op == op {
		return err
	}
	return &Error{Op: op, Kind: Classify(err), Code: Code(err), Err: err}
}

// Invalid builds a local InvalidArgument error.
func Invalid(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}

// New builds a local error of the given kind.
func New(op string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

func IsNotFound(err error) bool         { return Is(err, KindNotFound) }
func IsAlreadyExists(err error) bool    { return Is(err, KindAlreadyExists) }
func IsInvalidArgument(err error) bool  { return Is(err, KindInvalidArgument) }
func IsPermissionDenied(err error) bool { return Is(err, KindPermissionDenied) }
func IsTransient(err error) bool        { return Is(err, KindTransient) }
func IsConflict(err error) bool         { return Is(err, KindConflict) }
