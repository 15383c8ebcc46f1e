package cloud

import (
	"bytes"
	"encoding/json"
)

// Credentials identify a vendor account. Values are immutable once built.
type Credentials struct {
	Country  string
	Account  string
	Password string
}

// Phase is the position of a Session in its handshake.
type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseLoggingIn
	PhaseRegionResolved
	PhaseVisitorIDObtained
	PhaseSessionIDObtained
	PhaseConnected
)

// String returns the phase name used in logs and health payloads.
func (p Phase) String() string {
	switch p {
	case PhaseLoggingIn:
		return "logging_in"
	case PhaseRegionResolved:
		return "region_resolved"
	case PhaseVisitorIDObtained:
		return "visitor_id_obtained"
	case PhaseSessionIDObtained:
		return "session_id_obtained"
	case PhaseConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// sessionState holds every artifact produced by the handshake.
type sessionState struct {
	identityID string
	authToken  string
	oaGateway  string
	apiGateway string
	vid        string
	sid        string
	iotToken   string
	connected  bool
}

// Device is one entry of the account's device binding list.
type Device struct {
	IoTID        string `json:"iotId"`
	DeviceName   string `json:"deviceName"`
	NickName     string `json:"nickName"`
	ProductKey   string `json:"productKey"`
	ProductName  string `json:"productName"`
	CategoryKey  string `json:"categoryKey"`
	CategoryName string `json:"categoryName"`
	Status       int    `json:"status"`
	Owned        int    `json:"owned"`
	ThingType    string `json:"thingType"`
}

// DisplayName prefers the user-assigned nickname.
func (d Device) DisplayName() string {
	if d.NickName != "" {
		return d.NickName
	}
	return d.DeviceName
}

// Product describes a product released under the app key.
type Product struct {
	ProductKey   string `json:"productKey"`
	ProductName  string `json:"productName"`
	CategoryKey  string `json:"categoryKey"`
	CategoryName string `json:"categoryName"`
	Image        string `json:"image"`
}

// Properties is the raw property map returned by /thing/properties/get.
// Numbers are kept as json.Number.
type Properties map[string]any

// truthy accepts both "true" and true, as the OA gateway mixes the two.
type truthy bool

func (t *truthy) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	*t = truthy(string(b) == "true")
	return nil
}

var _ json.Unmarshaler = (*truthy)(nil)
