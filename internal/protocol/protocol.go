package protocol

import "encoding/json"

const Version = "0.3"

// Frame types on the watch stream and in journals.
const (
	TypeHello = "HELLO"
	TypeState = "STATE"
	TypeRoute = "ROUTE"
	TypeScan  = "SCAN"
)

// BaseMessage lets us route unknown JSON frames by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
