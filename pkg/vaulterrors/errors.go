// Package vaulterrors defines the error taxonomy shared across the vault
// core: transient, permanent, policy, integrity, and fatal failures.
//
// Reference: spec.md §7 Error Handling Design.
package vaulterrors

import "errors"

// Transient errors — recoverable via backoff + retry. On exhaustion the
// caller marks the file/item deferred and leaves it in place.
var (
	// ErrTimeout is returned when a source or adapter call exceeds its deadline.
	ErrTimeout = errors.New("transient: call timed out")

	// ErrUnavailable is returned for network failures and 5xx responses.
	ErrUnavailable = errors.New("transient: upstream unavailable")

	// ErrRateLimited is returned when an upstream itself rate-limits the caller.
	ErrRateLimited = errors.New("transient: rate limited by upstream")

	// ErrBreakerOpen is returned when a circuit breaker rejects the call outright.
	ErrBreakerOpen = errors.New("transient: circuit breaker open")

	// ErrBucketEmpty is returned when a token bucket has no tokens and the
	// caller asked to fail rather than block.
	ErrBucketEmpty = errors.New("transient: rate limit bucket empty")
)

// Permanent source errors — stop the offending watcher, emit an URGENT_
// note, open the circuit. Never retried automatically.
var (
	// ErrAuthFailed is returned when a source rejects credentials.
	ErrAuthFailed = errors.New("permanent: source authentication failed")

	// ErrSchemaMismatch is returned when a source's response no longer
	// matches the shape the watcher expects.
	ErrSchemaMismatch = errors.New("permanent: source schema mismatch")

	// ErrParseFailed is returned when a source payload cannot be parsed.
	ErrParseFailed = errors.New("permanent: source payload parse failure")
)

// Policy errors — move the file to Rejected/ with an error sibling, no retry.
var (
	// ErrExpired is returned when an approval note's deadline has passed.
	ErrExpired = errors.New("policy: approval expired")

	// ErrOverThreshold is returned when an action exceeds a configured
	// amount/rate threshold without a matching prior approval.
	ErrOverThreshold = errors.New("policy: over threshold without approval")

	// ErrOverRateLimit is returned when dispatch would exceed a channel's
	// configured rate and the orchestrator chooses to reject rather than defer.
	ErrOverRateLimit = errors.New("policy: over configured rate limit")

	// ErrMissingApproval is returned when a file reaches Approved/ without
	// ever having resided in Approved/ via the approval gate (spec.md §3.5 I4).
	ErrMissingApproval = errors.New("policy: approval gate not satisfied")
)

// Integrity errors — quarantine to Rejected/ with an error sibling, log,
// continue. The core never silently drops a file.
var (
	// ErrStemCollision is returned when emit cannot produce a unique filename.
	ErrStemCollision = errors.New("integrity: stem collision could not be resolved")

	// ErrStageMissing is returned when a configured stage directory does not exist.
	ErrStageMissing = errors.New("integrity: stage directory missing")

	// ErrPreambleUnreadable is returned when a note's frontmatter cannot be parsed.
	ErrPreambleUnreadable = errors.New("integrity: preamble unreadable")

	// ErrClaimLost is returned when claim fails because another peer already
	// claimed the file — not an error condition for the losing peer, just a
	// claim-miss signal.
	ErrClaimLost = errors.New("integrity: claim lost, file no longer present")

	// ErrAlreadyTerminal is returned when an operation targets a file already
	// in Done/ or Rejected/ (spec.md §3.5 I3: terminal stages are absorbing).
	ErrAlreadyTerminal = errors.New("integrity: file already in a terminal stage")
)

// Fatal errors — exit non-zero, let the external supervisor restart.
var (
	// ErrVaultRootMissing is returned when the vault root itself does not exist.
	ErrVaultRootMissing = errors.New("fatal: vault root missing")

	// ErrLogUnwritable is returned when the event log cannot be written at all.
	ErrLogUnwritable = errors.New("fatal: log file unwritable")
)

// Kind classifies an error into one of the five taxonomy buckets so retry
// and dispatch code can decide policy without string-matching.
type Kind int

const (
	// KindUnknown is the zero value; treated as permanent by callers that
	// must make a conservative choice.
	KindUnknown Kind = iota
	KindTransient
	KindPermanent
	KindPolicy
	KindIntegrity
	KindFatal
)

// String renders the Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindPolicy:
		return "policy"
	case KindIntegrity:
		return "integrity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var kindOf = map[error]Kind{
	ErrTimeout:            KindTransient,
	ErrUnavailable:        KindTransient,
	ErrRateLimited:        KindTransient,
	ErrBreakerOpen:        KindTransient,
	ErrBucketEmpty:        KindTransient,
	ErrAuthFailed:         KindPermanent,
	ErrSchemaMismatch:     KindPermanent,
	ErrParseFailed:        KindPermanent,
	ErrExpired:            KindPolicy,
	ErrOverThreshold:      KindPolicy,
	ErrOverRateLimit:      KindPolicy,
	ErrMissingApproval:    KindPolicy,
	ErrStemCollision:      KindIntegrity,
	ErrStageMissing:       KindIntegrity,
	ErrPreambleUnreadable: KindIntegrity,
	ErrClaimLost:          KindIntegrity,
	ErrAlreadyTerminal:    KindIntegrity,
	ErrVaultRootMissing:   KindFatal,
	ErrLogUnwritable:      KindFatal,
}

// Classify maps an error to its taxonomy Kind by walking the unwrap chain
// against the known sentinels. Unknown errors classify as KindUnknown;
// callers needing a conservative default should treat KindUnknown as
// permanent (fail closed rather than retry indefinitely).
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
