package supervisor

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Launch when the tracked pid is alive.
var ErrAlreadyRunning = errors.New("managed process is already running")

// Launch exit codes. The detached intermediate stage exits with one of these;
// the attached path computes the same values in-process.
const (
	CodeReady               = 0
	CodeBinaryNotFound      = 2
	CodeForkExec            = 3
	CodeTimeout             = 4
	CodeExitedClean         = 0x20
	CodeUnknownReason       = 0x21
	CodeAdminPortInUse      = 0x22
	CodeRuntimePortInUse    = 0x23
	CodeIncompatibleRuntime = 0x24
)

// Kind classifies a launch failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindBinaryNotFound
	KindForkExec
	KindTimeout
	KindExitedClean
	KindUnknownReason
	KindAdminPortInUse
	KindRuntimePortInUse
	KindIncompatibleRuntime
)

func (k Kind) String() string {
	switch k {
	case KindBinaryNotFound:
		return "binary_not_found"
	case KindForkExec:
		return "fork_exec"
	case KindTimeout:
		return "timeout"
	case KindExitedClean:
		return "exited_clean"
	case KindUnknownReason:
		return "unknown_reason"
	case KindAdminPortInUse:
		return "admin_port_in_use"
	case KindRuntimePortInUse:
		return "runtime_port_in_use"
	case KindIncompatibleRuntime:
		return "incompatible_runtime"
	default:
		return "unknown"
	}
}

// Retryable reports whether launching again without changes may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindBinaryNotFound, KindExitedClean, KindIncompatibleRuntime:
		return false
	default:
		return true
	}
}

// KindForCode maps a launch exit code to its Kind.
func KindForCode(code int) Kind {
	switch code {
	case CodeBinaryNotFound:
		return KindBinaryNotFound
	case CodeForkExec:
		return KindForkExec
	case CodeTimeout:
		return KindTimeout
	case CodeExitedClean:
		return KindExitedClean
	case CodeUnknownReason:
		return KindUnknownReason
	case CodeAdminPortInUse:
		return KindAdminPortInUse
	case CodeRuntimePortInUse:
		return KindRuntimePortInUse
	case CodeIncompatibleRuntime:
		return KindIncompatibleRuntime
	default:
		return KindUnknown
	}
}

// LaunchError describes a failed launch. Output holds whatever the managed
// process printed before the failure was detected.
type LaunchError struct {
	Kind   Kind
	Code   int
	Output string
	Err    error
}

func (e *LaunchError) Error() string {
	var msg string
	switch e.Kind {
	case KindBinaryNotFound:
		msg = "managed process binary not found in the search path"
	case KindForkExec:
		msg = "starting the managed process (fork/exec) did not succeed"
	case KindTimeout:
		msg = "starting the managed process takes too long"
	case KindExitedClean:
		msg = "managed process disappeared with a clean exit code"
	case KindUnknownReason:
		msg = "managed process terminated without reason"
	case KindAdminPortInUse:
		msg = "managed process terminated: could not bind admin port"
	case KindRuntimePortInUse:
		msg = "managed process terminated: could not bind runtime port"
	case KindIncompatibleRuntime:
		msg = "managed process terminated: incompatible runtime version"
	default:
		msg = fmt.Sprintf("starting the managed process failed, reason unknown (%d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }
