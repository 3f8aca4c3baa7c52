package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. ExpireIn/DeleteIn
// are unused by every control-plane message type; rpc/serializer's binary
// format already encodes their presence with dedicated flag bits.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key      string `json:"key,omitempty"`      // Used for: PoolConnect (pool UUID)
	ExpireIn uint64 `json:"expireIn,omitempty"` // Unused by any control-plane message type
	DeleteIn uint64 `json:"deleteIn,omitempty"` // Unused by any control-plane message type
	Value    []byte `json:"value,omitempty"`    // Used for: PoolConnect/Disconnect/Monitor/NotifyExit (opaque handle)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: PoolConnect/Disconnect/NotifyExit/SetupClientTelemetry responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // GetAttachInfo/PoolMonitor JSON bodies, SetupClientTelemetry config
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetAttachInfoRequest creates a new GetAttachInfo request (spec.md
// §6) — there is no per-request body, the server answers with its own
// fabric configuration.
func NewGetAttachInfoRequest() *Message {
	return &Message{MsgType: MsgTEngineGetAttachInfo}
}

// NewGetAttachInfoResponse creates a new GetAttachInfo response; body
// is the JSON-encoded attach info, carried in Meta.
func NewGetAttachInfoResponse(body []byte, err error) *Message {
	msg := &Message{MsgType: MsgTEngineGetAttachInfo, Meta: body}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPoolConnectRequest creates a new PoolConnect request; the target
// pool is identified by the module_id the transport layer routes on,
// poolUUID additionally disambiguates which pool the caller expects to
// find there.
func NewPoolConnectRequest(poolUUID string) *Message {
	return &Message{MsgType: MsgTEnginePoolConnect, Key: poolUUID}
}

// NewPoolConnectResponse creates a new PoolConnect response; handle is
// the opaque connection handle the caller must present to
// PoolDisconnect/PoolMonitor.
func NewPoolConnectResponse(handle []byte, ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTEnginePoolConnect, Ok: ok, Value: handle}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPoolDisconnectRequest creates a new PoolDisconnect request.
func NewPoolDisconnectRequest(handle []byte) *Message {
	return &Message{MsgType: MsgTEnginePoolDisconnect, Value: handle}
}

// NewPoolDisconnectResponse creates a new PoolDisconnect response.
func NewPoolDisconnectResponse(ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTEnginePoolDisconnect, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPoolMonitorRequest creates a new PoolMonitor request.
func NewPoolMonitorRequest(handle []byte) *Message {
	return &Message{MsgType: MsgTEnginePoolMonitor, Value: handle}
}

// NewPoolMonitorResponse creates a new PoolMonitor response; body is
// the JSON-encoded pool monitor info, carried in Meta.
func NewPoolMonitorResponse(body []byte, err error) *Message {
	msg := &Message{MsgType: MsgTEnginePoolMonitor, Meta: body}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewNotifyExitRequest creates a new NotifyExit request; handle is the
// exiting client's pool handle, if it still holds one open.
func NewNotifyExitRequest(handle []byte) *Message {
	return &Message{MsgType: MsgTEngineNotifyExit, Value: handle}
}

// NewNotifyExitResponse creates a new NotifyExit response.
func NewNotifyExitResponse(ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTEngineNotifyExit, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewSetupClientTelemetryRequest creates a new SetupClientTelemetry
// request; meta carries the client's requested telemetry sink config,
// which this server only acknowledges (spec.md §1 names the actual
// telemetry sink as an out-of-scope external collaborator).
func NewSetupClientTelemetryRequest(meta []byte) *Message {
	return &Message{MsgType: MsgTEngineSetupClientTelemetry, Meta: meta}
}

// NewSetupClientTelemetryResponse creates a new SetupClientTelemetry
// response — always a documented no-op acknowledgement.
func NewSetupClientTelemetryResponse(ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTEngineSetupClientTelemetry, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTKVSet:
		return "set"
	case MsgTKVSetE:
		return "setE"
	case MsgTKVSetEIfUnset:
		return "setEIfUnset"
	case MsgTKVExpire:
		return "expire"
	case MsgTKVDelete:
		return "delete"
	case MsgTKVGet:
		return "get"
	case MsgTKVHas:
		return "has"
	case MsgTLCKAcquire:
		return "acquire"
	case MsgTLCKRelease:
		return "release"
	case MsgTCustom:
		return "custom"
	case MsgTEngineGetAttachInfo:
		return "getAttachInfo"
	case MsgTEnginePoolConnect:
		return "poolConnect"
	case MsgTEnginePoolDisconnect:
		return "poolDisconnect"
	case MsgTEnginePoolMonitor:
		return "poolMonitor"
	case MsgTEngineNotifyExit:
		return "notifyExit"
	case MsgTEngineSetupClientTelemetry:
		return "setupClientTelemetry"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "set":
		*t = MsgTKVSet
	case "setE":
		*t = MsgTKVSetE
	case "setEIfUnset":
		*t = MsgTKVSetEIfUnset
	case "expire":
		*t = MsgTKVExpire
	case "delete":
		*t = MsgTKVDelete
	case "get":
		*t = MsgTKVGet
	case "has":
		*t = MsgTKVHas
	case "acquire":
		*t = MsgTLCKAcquire
	case "release":
		*t = MsgTLCKRelease
	case "custom":
		*t = MsgTCustom
	case "getAttachInfo":
		*t = MsgTEngineGetAttachInfo
	case "poolConnect":
		*t = MsgTEnginePoolConnect
	case "poolDisconnect":
		*t = MsgTEnginePoolDisconnect
	case "poolMonitor":
		*t = MsgTEnginePoolMonitor
	case "notifyExit":
		*t = MsgTEngineNotifyExit
	case "setupClientTelemetry":
		*t = MsgTEngineSetupClientTelemetry
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet         // Set a key-value pair
	MsgTKVSetE        // Set a key-value pair with expiration
	MsgTKVSetEIfUnset // Set a key-value pair if not already set
	MsgTKVExpire      // Expire a key
	MsgTKVDelete      // Delete a key-value pair
	MsgTKVGet         // Get a value by key
	MsgTKVHas         // Check if a key exists

	// ILockProvider operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock

	// Custom operations

	MsgTCustom // Custom operation type

	// Engine control-plane operations (spec.md §6's process boundary:
	// GetAttachInfo, PoolConnect/Disconnect, PoolMonitor, NotifyExit,
	// SetupClientTelemetry)

	MsgTEngineGetAttachInfo        // Fetch fabric attach info
	MsgTEnginePoolConnect          // Open a pool handle
	MsgTEnginePoolDisconnect       // Close a pool handle
	MsgTEnginePoolMonitor          // Fetch pool health/usage info
	MsgTEngineNotifyExit           // Client process exit notification
	MsgTEngineSetupClientTelemetry // Acknowledge telemetry setup (no-op)
)
