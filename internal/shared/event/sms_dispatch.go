package event

const SMSDispatchDestination string = "auth_sms_dispatch"

type SMSDispatchMessage struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}
