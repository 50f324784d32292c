// Package workflow holds the loan file status vocabulary and the table of
// moves each role may make between statuses.
package workflow

import "strings"

type Status string

const (
	StatusDraft               Status = "draft"
	StatusUnderKAMReview      Status = "under_kam_review"
	StatusQueryWithClient     Status = "query_with_client"
	StatusPendingCreditReview Status = "pending_credit_review"
	StatusSentToNBFC          Status = "sent_to_nbfc"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	StatusDisbursed           Status = "disbursed"
	StatusClosed              Status = "closed"
)

// Statuses lists the vocabulary in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusUnderKAMReview,
	StatusQueryWithClient,
	StatusPendingCreditReview,
	StatusSentToNBFC,
	StatusApproved,
	StatusRejected,
	StatusDisbursed,
	StatusClosed,
}

var statusLabels = map[Status]string{
	StatusDraft:               "Draft",
	StatusUnderKAMReview:      "Under KAM Review",
	StatusQueryWithClient:     "Query With Client",
	StatusPendingCreditReview: "Pending Credit Review",
	StatusSentToNBFC:          "Sent to NBFC",
	StatusApproved:            "Approved",
	StatusRejected:            "Rejected",
	StatusDisbursed:           "Disbursed",
	StatusClosed:              "Closed",
}

// Label is the text stored in the record store.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus accepts either the stored label ("Pending Credit Review") or
// the snake-case code, in any case.
func ParseStatus(value string) (Status, bool) {
	code := strings.ToLower(strings.TrimSpace(value))
	code = strings.NewReplacer(" ", "_", "-", "_").Replace(code)
	for _, status := range Statuses {
		if string(status) == code {
			return status, true
		}
	}
	return "", false
}
