package entity

import "time"

// Application is one merchant onboarding request. At most one live
// (undecided) application exists per email.
type Application struct {
	ID              int64
	BusinessName    string
	Email           string
	Phone           string
	Category        string
	City            string
	Status          ApplicationStatus
	EmailVerifiedAt *time.Time
	ReviewNote      string
	DecidedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsDecided reports whether staff already ruled on the application.
func (a Application) IsDecided() bool {
	return a.Status == ApplicationStatusApproved || a.Status == ApplicationStatusRejected
}

type NewApplication struct {
	ID           int64
	BusinessName string
	Email        string
	Phone        string
	Category     string
	City         string
	Status       ApplicationStatus
}

// Profile is the live merchant record created when an application is approved.
type Profile struct {
	ID            int64
	ApplicationID int64
	BusinessName  string
	Email         string
	Phone         string
	Category      string
	City          string
	Status        ProfileStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ApplicationListFilterData struct {
	Statuses []int16
	DateFrom time.Time
	DateTo   time.Time
	Size     int32
	Page     int32

	IsFilterByStatus bool
}
