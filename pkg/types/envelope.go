package types

// Message kinds exchanged between pages, the broker and the popup
const (
	KindConnect                  = "connect"
	KindGetActiveAddress         = "get_active_address"
	KindGetAllAddresses          = "get_all_addresses"
	KindGetPermissions           = "get_permissions"
	KindSignTransaction          = "sign_transaction"
	KindSignAuth                 = "sign_auth"
	KindSwitchWalletEvent        = "switch_wallet_event"
	KindSwitchWalletEventForward = "switch_wallet_event_forward"
)

// Sender roles
const (
	SenderAPI        = "api"
	SenderPopup      = "popup"
	SenderBackground = "background"
)

// ResultKind returns the reply type for a request kind
func ResultKind(kind string) string {
	return kind + "_result"
}

// Envelope is an inbound request from a page
type Envelope struct {
	Type             string            `json:"type"`
	Sender           string            `json:"sender"`
	Permissions      []Capability      `json:"permissions,omitempty"`
	Transaction      *Transaction      `json:"transaction,omitempty"`
	SignatureOptions *SignatureOptions `json:"signatureOptions,omitempty"`
}

// Response is an outbound envelope answering a request
type Response struct {
	Type        string       `json:"type"`
	Ext         string       `json:"ext"`
	Sender      string       `json:"sender"`
	Res         bool         `json:"res"`
	Message     string       `json:"message,omitempty"`
	Address     string       `json:"address,omitempty"`
	Addresses   []string     `json:"addresses,omitempty"`
	Permissions []Capability `json:"permissions,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// ApprovalReply is sent by the approval surface once the user decided.
// RequestID and Ticket echo the values from the launch context.
type ApprovalReply struct {
	Type          string       `json:"type"`
	Sender        string       `json:"sender"`
	RequestID     string       `json:"requestId"`
	Ticket        string       `json:"ticket"`
	Res           bool         `json:"res"`
	Message       string       `json:"message,omitempty"`
	DecryptionKey string       `json:"decryptionKey,omitempty"`
	Permissions   []Capability `json:"permissions,omitempty"`
}

// PopupEvent is a notification raised by the management surface
type PopupEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Address string `json:"address,omitempty"`
}

// ForwardedEvent is pushed to a page channel
type ForwardedEvent struct {
	Type    string `json:"type"`
	Ext     string `json:"ext"`
	Sender  string `json:"sender"`
	Address string `json:"address,omitempty"`
}
