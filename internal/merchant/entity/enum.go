package entity

import "strconv"

type ApplicationStatus int16

const (
	// ApplicationStatusUnknown is mean status is not known / not set.
	ApplicationStatusUnknown ApplicationStatus = 0

	// ApplicationStatusPendingVerification mean the application exists but the
	// contact email has not been verified yet.
	ApplicationStatusPendingVerification ApplicationStatus = 1

	// ApplicationStatusSubmitted mean the email is verified and the application
	// waits for a staff decision.
	ApplicationStatusSubmitted ApplicationStatus = 2

	// ApplicationStatusApproved mean staff approved and a merchant profile exists.
	ApplicationStatusApproved ApplicationStatus = 3

	// ApplicationStatusRejected mean staff rejected the application.
	ApplicationStatusRejected ApplicationStatus = 4
)

func (as ApplicationStatus) String() string {
	switch as {
	case ApplicationStatusPendingVerification:
		return "PendingVerification"
	case ApplicationStatusSubmitted:
		return "Submitted"
	case ApplicationStatusApproved:
		return "Approved"
	case ApplicationStatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

func (as ApplicationStatus) IsUnknown() bool {
	switch as {
	case ApplicationStatusPendingVerification, ApplicationStatusSubmitted,
		ApplicationStatusApproved, ApplicationStatusRejected:
		return false
	default:
		return true
	}
}

func (as ApplicationStatus) Ensure() ApplicationStatus {
	switch as {
	case ApplicationStatusPendingVerification:
		return ApplicationStatusPendingVerification
	case ApplicationStatusSubmitted:
		return ApplicationStatusSubmitted
	case ApplicationStatusApproved:
		return ApplicationStatusApproved
	case ApplicationStatusRejected:
		return ApplicationStatusRejected
	default:
		return ApplicationStatusUnknown
	}
}

func ApplicationStatusFromString(str string) ApplicationStatus {
	switch str {
	case "PendingVerification":
		return ApplicationStatusPendingVerification
	case "Submitted":
		return ApplicationStatusSubmitted
	case "Approved":
		return ApplicationStatusApproved
	case "Rejected":
		return ApplicationStatusRejected
	default:
		return ApplicationStatusUnknown
	}
}

// ParseSafeApplicationStatuses accepts status names or numeric codes, dropping
// duplicates and anything unrecognized.
func ParseSafeApplicationStatuses(raws []string) []ApplicationStatus {
	out := make([]ApplicationStatus, 0)
	seen := map[ApplicationStatus]struct{}{}

	for _, v := range raws {
		s := ApplicationStatusFromString(v)
		if s.IsUnknown() {
			n, err := strconv.ParseInt(v, 10, 16)
			if err != nil {
				continue
			}
			s = ApplicationStatus(n)
		}

		if s.IsUnknown() {
			continue
		}

		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

func ToInt16Slice(sts []ApplicationStatus) []int16 {
	out := make([]int16, len(sts))
	for i, s := range sts {
		out[i] = int16(s)
	}
	return out
}

type ProfileStatus int16

const (
	ProfileStatusUnknown ProfileStatus = 0

	// ProfileStatusActive mean the merchant is live and may appear in the app.
	ProfileStatusActive ProfileStatus = 1
)

func (ps ProfileStatus) String() string {
	switch ps {
	case ProfileStatusActive:
		return "Active"
	default:
		return "Unknown"
	}
}
