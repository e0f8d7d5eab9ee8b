package launch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a launch failure.
type ErrorKind string

const (
	KindPayloadTooLarge           ErrorKind = "PayloadTooLarge"
	KindFieldTooLong              ErrorKind = "FieldTooLong"
	KindMissingField              ErrorKind = "MissingField"
	KindInvalidImage              ErrorKind = "InvalidImage"
	KindInvalidIdentity           ErrorKind = "InvalidIdentity"
	KindInvalidContribution       ErrorKind = "InvalidContribution"
	KindInvalidLink               ErrorKind = "InvalidLink"
	KindInvalidFeeSplit           ErrorKind = "InvalidFeeSplit"
	KindUpstreamRejected          ErrorKind = "UpstreamRejected"
	KindUpstreamUnavailable       ErrorKind = "UpstreamUnavailable"
	KindMalformedUpstreamResponse ErrorKind = "MalformedUpstreamResponse"
	KindUserRejectedSigning       ErrorKind = "UserRejectedSigning"
	KindWalletUnavailable         ErrorKind = "WalletUnavailable"
	KindLedgerSubmissionFailed    ErrorKind = "LedgerSubmissionFailed"
	KindLedgerConfirmationTimeout ErrorKind = "LedgerConfirmationTimeout"
	KindPersistenceFailed         ErrorKind = "PersistenceFailed"
)

// IsValidation reports whether k is raised by local checks before any network call.
func (k ErrorKind) IsValidation() bool {
	switch k {
	case KindPayloadTooLarge, KindFieldTooLong, KindMissingField, KindInvalidImage,
		KindInvalidIdentity, KindInvalidContribution, KindInvalidLink, KindInvalidFeeSplit:
		return true
	}
	return false
}

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageValidate  Stage = "validate"
	StagePublish   Stage = "publish"
	StageNegotiate Stage = "negotiate"
	StageAuthorize Stage = "authorize"
	StageLaunch    Stage = "launch"
	StagePersist   Stage = "persist"
)

// Error is a classified launch failure.
// Status and Message are set for UpstreamRejected.
type Error struct {
	Kind    ErrorKind
	Stage   Stage
	Field   string // offending field for validation errors
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d): %s", e.Stage, e.Kind, e.Status, msg)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s: %s", e.Stage, e.Kind, e.Field, msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so callers can write
// errors.Is(err, &launch.Error{Kind: launch.KindFieldTooLong}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(kind ErrorKind, field, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Stage:   StageValidate,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
