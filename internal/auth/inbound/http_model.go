package inbound

type OTPRequestRequest struct {
	Phone string `json:"phone"`
}

type OTPRequestResponse struct{}

func (OTPRequestResponse) Message() string {
	return "If the phone number can receive SMS, we have sent a verification code."
}

type OTPLoginRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Email string `json:"email,omitempty"`
}

type OTPLoginResponse struct {
	AccessToken     string `json:"access_token"`
	UserID          int64  `json:"user_id,string"`
	ProfileComplete bool   `json:"profile_complete"`
}

type ProfileResponse struct {
	ID              int64  `json:"id,string"`
	Phone           string `json:"phone"`
	Email           string `json:"email,omitempty"`
	FullName        string `json:"full_name"`
	Role            string `json:"role"`
	Status          string `json:"status"`
	PhoneVerified   bool   `json:"phone_verified"`
	ProfileComplete bool   `json:"profile_complete"`
}
