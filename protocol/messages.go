package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// ResultResponse is the acknowledgement most endpoints answer with.
type ResultResponse struct {
	Result string `json:"result"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// StatusResponse answers the liveness probe.
type StatusResponse struct {
	Status string `json:"status"`
	ID     int    `json:"id,omitempty"`
}

// InitialValuesRequest seeds a party with the sharing parameters and its own
// 1-based position in the roster.
type InitialValuesRequest struct {
	T       int      `json:"t"`
	N       int      `json:"n"`
	ID      int      `json:"id"`
	P       string   `json:"p"`
	Parties []string `json:"parties"`
}

// InitialValuesResponse reports the parameters a party was seeded with.
type InitialValuesResponse struct {
	T       int      `json:"t"`
	N       int      `json:"n"`
	P       string   `json:"p,omitempty"`
	Parties []string `json:"parties"`
	Result  string   `json:"result"`
}

// Equal compares the roster-wide part of two responses.
func (r *InitialValuesResponse) Equal(o *InitialValuesResponse) bool {
	if r.T != o.T || r.N != o.N || r.P != o.P || len(r.Parties) != len(o.Parties) {
		return false
	}
	for i := range r.Parties {
		if r.Parties[i] != o.Parties[i] {
			return false
		}
	}
	return true
}

// BiddersResponse lists the bidder IDs a party holds shares for.
type BiddersResponse struct {
	Bidders []int `json:"bidders"`
}

// SetSharesRequest stores either a bidder's share (client_id, share) or a
// public constant under a name (share_name, share_value). Use
// NewBidShareRequest or NewDummyShareRequest to build one.
type SetSharesRequest struct {
	ClientID   *int   `json:"client_id,omitempty"`
	Share      string `json:"share,omitempty"`
	ShareName  string `json:"share_name,omitempty"`
	ShareValue string `json:"share_value,omitempty"`
}

// NewBidShareRequest wraps one party's share of a bid.
func NewBidShareRequest(clientID int, share *big.Int) *SetSharesRequest {
	return &SetSharesRequest{ClientID: &clientID, Share: EncodeHex(share)}
}

// NewDummyShareRequest sets the same public value at every party. A constant
// is a valid degree-0 sharing of itself.
func NewDummyShareRequest(name string, value *big.Int) *SetSharesRequest {
	return &SetSharesRequest{ShareName: name, ShareValue: EncodeHex(value)}
}

// IsBidShare returns true for the (client_id, share) form.
func (r *SetSharesRequest) IsBidShare() bool {
	return r.ClientID != nil
}

// Validate checks that exactly one of the two forms is populated.
func (r *SetSharesRequest) Validate() error {
	bid := r.ClientID != nil || r.Share != ""
	dummy := r.ShareName != "" || r.ShareValue != ""
	switch {
	case bid && dummy:
		return errors.New("set-shares takes either client_id/share or share_name/share_value")
	case bid:
		if r.ClientID == nil || r.Share == "" {
			return errors.New("client_id and share are both required")
		}
	case dummy:
		if r.ShareName == "" || r.ShareValue == "" {
			return errors.New("share_name and share_value are both required")
		}
	default:
		return errors.New("empty set-shares request")
	}
	return nil
}

// SharePairRequest names the two operands of calculate-additive-share.
type SharePairRequest struct {
	FirstShareName  string `json:"first_share_name"`
	SecondShareName string `json:"second_share_name"`
}

// RedistributeKind tells which operands a redistribute-r call multiplies.
type RedistributeKind int

const (
	// RedistributeNamed multiplies two named shares.
	RedistributeNamed RedistributeKind = iota
	// RedistributeStack multiplies zZ-stack or temporary entries addressed by factor vectors.
	RedistributeStack
	// RedistributeFinal multiplies (a_l XOR r_l) with the final Z of the stack.
	RedistributeFinal
)

// RedistributeRRequest is the body of redistribute-r. It has three forms,
// built with RedistributeNamedShares, RedistributeStackFactors and
// RedistributeFinalComparison.
type RedistributeRRequest struct {
	FirstShareName  string `json:"first_share_name,omitempty"`
	SecondShareName string `json:"second_share_name,omitempty"`

	TakeValueFromTemporaryZZ     bool  `json:"take_value_from_temporary_zZ,omitempty"`
	ZZFirstMultiplicationFactor  []int `json:"zZ_first_multiplication_factor,omitempty"`
	ZZSecondMultiplicationFactor []int `json:"zZ_second_multiplication_factor,omitempty"`

	CalculateFinalComparisonResult bool   `json:"calculate_final_comparison_result,omitempty"`
	OpenedA                        string `json:"opened_a,omitempty"`
	L                              int    `json:"l,omitempty"`
	K                              int    `json:"k,omitempty"`
}

// RedistributeNamedShares multiplies the shares stored under first and second.
func RedistributeNamedShares(first, second string) *RedistributeRRequest {
	return &RedistributeRRequest{FirstShareName: first, SecondShareName: second}
}

// RedistributeStackFactors multiplies stack entries. A factor [i, c] is
// component c (0 for z, 1 for Z) of the i-th entry from the top. With
// fromTemporary set, the second factor [j] is temporary slot j instead.
func RedistributeStackFactors(fromTemporary bool, first, second []int) *RedistributeRRequest {
	return &RedistributeRRequest{
		TakeValueFromTemporaryZZ:     fromTemporary,
		ZZFirstMultiplicationFactor:  first,
		ZZSecondMultiplicationFactor: second,
	}
}

// RedistributeFinalComparison multiplies (a_l XOR r_l) with the final Z.
func RedistributeFinalComparison(openedA *big.Int, l, k int) *RedistributeRRequest {
	return &RedistributeRRequest{
		CalculateFinalComparisonResult: true,
		OpenedA:                        EncodeHex(openedA),
		L:                              l,
		K:                              k,
	}
}

// Kind classifies the request.
func (r *RedistributeRRequest) Kind() (RedistributeKind, error) {
	switch {
	case r.CalculateFinalComparisonResult:
		return RedistributeFinal, nil
	case r.ZZFirstMultiplicationFactor != nil || r.ZZSecondMultiplicationFactor != nil:
		if len(r.ZZFirstMultiplicationFactor) != 2 || len(r.ZZSecondMultiplicationFactor) == 0 {
			return 0, errors.New("malformed zZ multiplication factors")
		}
		return RedistributeStack, nil
	case r.FirstShareName != "" && r.SecondShareName != "":
		return RedistributeNamed, nil
	}
	return 0, errors.New("redistribute-r needs share names, zZ factors or the final comparison flag")
}

// MultiplicativeShareRequest tells a party where to put the degree-reduced
// product. Without fields the product is only kept as the current
// multiplicative share.
type MultiplicativeShareRequest struct {
	SetInTemporaryZZIndex *int `json:"set_in_temporary_zZ_index,omitempty"`
	CalculateForXor       bool `json:"calculate_for_xor,omitempty"`
}

// StoreInTemporary builds a request storing the product in temporary slot i.
func StoreInTemporary(i int) *MultiplicativeShareRequest {
	return &MultiplicativeShareRequest{SetInTemporaryZZIndex: &i}
}

// XorRequest combines two stack operands with the product computed for XOR.
type XorRequest struct {
	TakeValueFromTemporaryZZ     bool  `json:"take_value_from_temporary_zZ"`
	ZZFirstMultiplicationFactor  []int `json:"zZ_first_multiplication_factor"`
	ZZSecondMultiplicationFactor []int `json:"zZ_second_multiplication_factor"`
}

// AComparisonRequest computes the masked difference of two bidders' bids.
type AComparisonRequest struct {
	FirstClientID  int `json:"first_client_id"`
	SecondClientID int `json:"second_client_id"`
	L              int `json:"l"`
	K              int `json:"k"`
}

// OpenedARequest carries the publicly opened masked difference.
type OpenedARequest struct {
	OpenedA string `json:"opened_a"`
	L       int    `json:"l"`
	K       int    `json:"k"`
}

// InitializeZRequest starts the z/Z accumulators.
type InitializeZRequest struct {
	L int `json:"l"`
}

// ReconstructResponse carries an opened secret.
type ReconstructResponse struct {
	Result string `json:"result"`
	Secret string `json:"secret"`
}

// SubShareMessage is sent from party to party while resharing a value.
type SubShareMessage struct {
	From  int    `json:"from"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ShareResponse returns one party's share of a named value.
type ShareResponse struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

// EncodeHex renders a field element as lowercase hex without prefix.
func EncodeHex(v *big.Int) string {
	return v.Text(16)
}

// DecodeHex parses a non-negative hex value with an optional 0x prefix.
func DecodeHex(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed == "" {
		return nil, fmt.Errorf("empty hex value %q", s)
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid hex value %q", s)
	}
	return v, nil
}

// DecodeMessage deserializes a JSON message.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}
