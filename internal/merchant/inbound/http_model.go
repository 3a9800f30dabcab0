package inbound

type ApplyRequest struct {
	BusinessName string `json:"business_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Category     string `json:"category"`
	City         string `json:"city"`
}

type ApplyResponse struct {
	ApplicationID int64  `json:"application_id,string"`
	Status        string `json:"status"`
}

func (ApplyResponse) Message() string {
	return "Application received. Verify the contact email to submit it for review."
}

type EmailOTPRequestRequest struct {
	Email string `json:"email"`
}

type EmailOTPRequestResponse struct{}

func (EmailOTPRequestResponse) Message() string {
	return "We have sent a verification code to the application email."
}

type EmailOTPVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type EmailOTPVerifyResponse struct {
	ApplicationID int64  `json:"application_id,string"`
	Status        string `json:"status"`
}

func (EmailOTPVerifyResponse) Message() string {
	return "Application submitted for review."
}

type ReviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}

type ReviewResponse struct {
	ApplicationID int64  `json:"application_id,string"`
	MerchantID    int64  `json:"merchant_id,string,omitempty"`
	Status        string `json:"status"`
}

type ExportRequest struct {
	Statuses []string `json:"statuses,omitempty"`
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
}

type ExportResponse struct {
	ObjectKey   string `json:"object_key"`
	DownloadURL string `json:"download_url"`
	Count       int    `json:"count"`
}
