package anchor

import (
	"fmt"
	"net/http"
)

// Class groups anchoring response status codes.
type Class int

const (
	ClassSuccess Class = iota
	ClassClientOrServerError
	ClassUnexpected
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassClientOrServerError:
		return "client_or_server_error"
	default:
		return "unexpected"
	}
}

// Classify maps an HTTP status to its class. Only 200 is a success.
func Classify(status int) Class {
	switch status {
	case http.StatusOK:
		return ClassSuccess
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusConflict,
		http.StatusInternalServerError:
		return ClassClientOrServerError
	default:
		return ClassUnexpected
	}
}

// VerificationPolicy decides how an unverifiable success response is reported.
type VerificationPolicy string

const (
	// ReportDelivered keeps reporting the attempt as delivered.
	ReportDelivered VerificationPolicy = "report-delivered"
	// TreatAsFailure reports the attempt as failed.
	TreatAsFailure VerificationPolicy = "treat-as-failure"
)

func ParseVerificationPolicy(s string) (VerificationPolicy, error) {
	switch VerificationPolicy(s) {
	case "", ReportDelivered:
		return ReportDelivered, nil
	case TreatAsFailure:
		return TreatAsFailure, nil
	default:
		return "", fmt.Errorf("unknown verification policy %q", s)
	}
}

// Outcome is the result of processing one reading.
type Outcome int

const (
	// OutcomeNotReady means the device identity did not reach Ready; nothing was sent.
	OutcomeNotReady Outcome = iota
	// OutcomeBuildFailed means no envelope could be built or its chain value persisted.
	OutcomeBuildFailed
	// OutcomeSendFailed means the request did not produce a response.
	OutcomeSendFailed
	// OutcomeDelivered means the backend accepted the envelope.
	OutcomeDelivered
	// OutcomeRejected means the backend answered with a client or server error.
	OutcomeRejected
	// OutcomeUnexpected means the backend answered with a status outside the known set.
	OutcomeUnexpected
	// OutcomeVerificationFailed means the success response did not verify and
	// the worker runs with TreatAsFailure.
	OutcomeVerificationFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeBuildFailed:
		return "build_failed"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnexpected:
		return "unexpected"
	case OutcomeVerificationFailed:
		return "verification_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// AnchorResult describes the processing of one reading.
type AnchorResult struct {
	Outcome  Outcome
	Status   int
	Class    Class
	Verified bool
	Err      error
}
