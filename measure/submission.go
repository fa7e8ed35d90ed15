package measure

import (
	"context"
	"time"
)

// Submission is the outcome of one append attempt, kept for the operator's
// recent-history view. It never holds measurement values.
type Submission struct {
	OperationID    string
	Fingerprint    Fingerprint
	Sheet          string
	OperatorID     string
	RowNumber      int
	Success        bool
	ErrorKind      string
	ErrorMessage   string
	ColumnsCreated []string
	At             time.Time
}

// SubmissionLog records append attempts. Recording failures are logged by
// the service and never fail a submit.
type SubmissionLog interface {
	Record(ctx context.Context, s Submission) error
	Submissions(ctx context.Context, fp Fingerprint, sheet string, limit int) ([]Submission, error)
}

func newSubmission(opID string, fp Fingerprint, sheet, operatorID string, w WriteResult, at time.Time) Submission {
	s := Submission{
		OperationID:    opID,
		Fingerprint:    fp,
		Sheet:          sheet,
		OperatorID:     operatorID,
		RowNumber:      w.RowNumber,
		Success:        w.Success,
		ColumnsCreated: w.ColumnsCreated,
		At:             at,
	}
	if w.Err != nil {
		s.ErrorKind = KindOf(w.Err)
		s.ErrorMessage = w.Err.Error()
	}
	return s
}
