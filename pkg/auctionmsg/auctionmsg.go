package auctionmsg

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/thanhpk/randstr"
)

// Type discriminates the auction protocol messages exchanged between peers
// over the routed messaging primitive.
type Type int

const (
	// TypeAttestation carries the result digest a party independently
	// observed from its own engine run.
	TypeAttestation Type = iota
	// TypeReveal carries the winner's bid opening.
	TypeReveal
	// TypeStatusRequest asks a peer for its current view of a listing, used
	// by a reconnecting peer to reconcile after a partition.
	TypeStatusRequest
	// TypeStatusReply answers a TypeStatusRequest.
	TypeStatusReply
	// TypeCancelNotice notifies reachable peers that a listing was
	// cancelled and its resources released.
	TypeCancelNotice
)

var (
	// ErrInvalidMessage ...
	ErrInvalidMessage = errors.New("message is not a valid auction message")
	// ErrUnexpectedType is returned when decoding a body of the wrong type.
	ErrUnexpectedType = errors.New("unexpected message type")
)

// Envelope wraps every auction protocol message with its routing metadata
// and the sender signature.
type Envelope struct {
	Id        string `cbor:"1,keyasint"`
	Type      Type   `cbor:"2,keyasint"`
	ListingId string `cbor:"3,keyasint"`
	Sender    string `cbor:"4,keyasint"`
	Payload   []byte `cbor:"5,keyasint"`
	Signature []byte `cbor:"6,keyasint,omitempty"`
}

// SigningPayload returns the bytes the sender signs, everything but the
// signature itself.
func (e *Envelope) SigningPayload() []byte {
	return []byte(fmt.Sprintf(
		"%s|%d|%s|%s|%x", e.Id, e.Type, e.ListingId, e.Sender, e.Payload,
	))
}

// Attestation is the body of a TypeAttestation message. It carries the full
// outcome the party observed, so the seller, which runs no engine, can
// reconstruct the result from the quorum alone. The price travels in its
// canonical decimal string form so the digest comparison is byte-stable.
type Attestation struct {
	WinnerPartyIndex int    `cbor:"1,keyasint"`
	ClearedPrice     string `cbor:"2,keyasint"`
	ResultDigest     string `cbor:"3,keyasint"`
}

// Reveal is the body of a TypeReveal message. The amount travels in its
// canonical decimal string form so the commitment check is byte-stable.
type Reveal struct {
	Amount string `cbor:"1,keyasint"`
	Nonce  string `cbor:"2,keyasint"`
}

// StatusRequest is the body of a TypeStatusRequest message. It carries the
// requester's own status so the responder can tell whether the requester is
// behind and re-send whatever the requester is still waiting for.
type StatusRequest struct {
	StatusCode int `cbor:"1,keyasint"`
}

// StatusReply is the body of a TypeStatusReply message.
type StatusReply struct {
	StatusCode            int    `cbor:"1,keyasint"`
	Reason                string `cbor:"2,keyasint,omitempty"`
	AssignmentFingerprint string `cbor:"3,keyasint,omitempty"`
}

// CancelNotice is the body of a TypeCancelNotice message.
type CancelNotice struct {
	Reason string `cbor:"1,keyasint"`
}

// Signer produces a signature over the given payload with the local
// identity key.
type Signer func(payload []byte) []byte

// New builds, signs and serializes an auction message of the given type. It
// returns the message id together with the raw bytes to be sent.
func New(
	msgType Type, listingId, sender string, body interface{}, sign Signer,
) (string, []byte, error) {
	payload, err := cbor.Marshal(body)
	if err != nil {
		return "", nil, err
	}

	envelope := &Envelope{
		Id:        randstr.Hex(8),
		Type:      msgType,
		ListingId: listingId,
		Sender:    sender,
		Payload:   payload,
	}
	if sign != nil {
		envelope.Signature = sign(envelope.SigningPayload())
	}

	raw, err := cbor.Marshal(envelope)
	if err != nil {
		return "", nil, err
	}
	return envelope.Id, raw, nil
}

// Parse deserializes a raw auction message.
func Parse(raw []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := cbor.Unmarshal(raw, envelope); err != nil {
		return nil, ErrInvalidMessage
	}
	if len(envelope.Id) <= 0 || len(envelope.ListingId) <= 0 ||
		len(envelope.Sender) <= 0 {
		return nil, ErrInvalidMessage
	}
	return envelope, nil
}

// DecodeAttestation decodes the body of a TypeAttestation envelope.
func DecodeAttestation(e *Envelope) (*Attestation, error) {
	if e.Type != TypeAttestation {
		return nil, ErrUnexpectedType
	}
	body := &Attestation{}
	if err := cbor.Unmarshal(e.Payload, body); err != nil {
		return nil, ErrInvalidMessage
	}
	return body, nil
}

// DecodeReveal decodes the body of a TypeReveal envelope.
func DecodeReveal(e *Envelope) (*Reveal, error) {
	if e.Type != TypeReveal {
		return nil, ErrUnexpectedType
	}
	body := &Reveal{}
	if err := cbor.Unmarshal(e.Payload, body); err != nil {
		return nil, ErrInvalidMessage
	}
	return body, nil
}

// DecodeStatusRequest decodes the body of a TypeStatusRequest envelope.
func DecodeStatusRequest(e *Envelope) (*StatusRequest, error) {
	if e.Type != TypeStatusRequest {
		return nil, ErrUnexpectedType
	}
	body := &StatusRequest{}
	if err := cbor.Unmarshal(e.Payload, body); err != nil {
		return nil, ErrInvalidMessage
	}
	return body, nil
}

// DecodeStatusReply decodes the body of a TypeStatusReply envelope.
func DecodeStatusReply(e *Envelope) (*StatusReply, error) {
	if e.Type != TypeStatusReply {
		return nil, ErrUnexpectedType
	}
	body := &StatusReply{}
	if err := cbor.Unmarshal(e.Payload, body); err != nil {
		return nil, ErrInvalidMessage
	}
	return body, nil
}

// DecodeCancelNotice decodes the body of a TypeCancelNotice envelope.
func DecodeCancelNotice(e *Envelope) (*CancelNotice, error) {
	if e.Type != TypeCancelNotice {
		return nil, ErrUnexpectedType
	}
	body := &CancelNotice{}
	if err := cbor.Unmarshal(e.Payload, body); err != nil {
		return nil, ErrInvalidMessage
	}
	return body, nil
}
