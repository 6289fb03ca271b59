package types

import "encoding/json"

// VerifyRequest asks whether Signature authorizes Digest for Signer.
// Exactly one digest source is set: Hash (already hashed), Message
// (EIP-191 personal message) or TypedData (EIP-712, go-ethereum JSON form).
type VerifyRequest struct {
	Signer    string          `json:"signer"`
	Signature string          `json:"signature"`
	Hash      string          `json:"hash,omitempty"`
	Message   *string         `json:"message,omitempty"` // nil when absent; "" is a valid message
	TypedData json.RawMessage `json:"typedData,omitempty"`
}

// VerifyResponse is the public verification result. Internal failure
// details are logged, never returned.
type VerifyResponse struct {
	IsValid bool   `json:"isValid"`
	Signer  string `json:"signer"`
}

// WrapRequest asks for a counterfactual signature
type WrapRequest struct {
	Factory         string `json:"factory"`
	FactoryCalldata string `json:"factoryCalldata"`
	Signature       string `json:"signature"`
}

// WrapResponse carries the marker-terminated signature
type WrapResponse struct {
	Signature string `json:"signature"`
}

// UnwrapRequest asks to decode a possibly wrapped signature
type UnwrapRequest struct {
	Signature string `json:"signature"`
}

// UnwrapResponse is the decoded form. When Wrapped is false the other
// fields are empty and the signature should be used as-is.
type UnwrapResponse struct {
	Wrapped         bool   `json:"wrapped"`
	Factory         string `json:"factory,omitempty"`
	FactoryCalldata string `json:"factoryCalldata,omitempty"`
	Signature       string `json:"signature,omitempty"`
}

// SupportedKind is one scheme/network pair the facilitator serves
type SupportedKind struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// SupportedResponse lists what the facilitator serves
type SupportedResponse struct {
	Kinds   []SupportedKind `json:"kinds"`
	Signers []string        `json:"signers"`
}

// ErrorResponse is returned for requests that could not be processed
type ErrorResponse struct {
	Error   string   `json:"error"`
	Reason  string   `json:"reason,omitempty"`
	Details []string `json:"details,omitempty"`
}
