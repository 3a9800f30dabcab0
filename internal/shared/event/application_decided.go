package event

const MerchantApplicationDecidedDestination string = "merchant_application_decided"

type MerchantApplicationDecidedMessage struct {
	ApplicationID int64  `json:"application_id"`
	MerchantID    int64  `json:"merchant_id,omitempty"`
	BusinessName  string `json:"business_name"`
	Email         string `json:"email"`
	Decision      string `json:"decision"`
	Reason        string `json:"reason,omitempty"`
}
