package auction

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

const recordDomain = "mpcauction/record/v1"

// ErrDigestMismatch is returned when a stored record does not hash to its ID.
var ErrDigestMismatch = errors.New("record digest mismatch")

// Comparison is the public part of one pairwise comparison: who was
// compared, the opened masked difference and the opened result bit.
type Comparison struct {
	WinnerID    int    `cbor:"1,keyasint" json:"winner_id"`
	ContenderID int    `cbor:"2,keyasint" json:"contender_id"`
	OpenedA     string `cbor:"3,keyasint" json:"opened_a"`
	Bit         int    `cbor:"4,keyasint" json:"bit"`
}

// Record is the public outcome of one auction. It never contains a bid.
type Record struct {
	// ID is the hex BLAKE3 digest of the encoded record.
	ID string `json:"id"`

	WinnerID   int          `json:"winner_id"`
	Bidders    []int        `json:"bidders"`
	Parties    []string     `json:"parties"`
	Strategy   string       `json:"strategy"`
	Transcript []Comparison `json:"transcript"`

	// Timestamps are kept at millisecond precision in UTC.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// recordBody is the hashed encoding of a Record.
type recordBody struct {
	WinnerID   int          `cbor:"1,keyasint"`
	Bidders    []int        `cbor:"2,keyasint"`
	Parties    []string     `cbor:"3,keyasint"`
	Strategy   string       `cbor:"4,keyasint"`
	Transcript []Comparison `cbor:"5,keyasint"`
	StartedAt  int64        `cbor:"6,keyasint"`
	FinishedAt int64        `cbor:"7,keyasint"`
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Encode serializes the record deterministically, without its ID.
func (r *Record) Encode() ([]byte, error) {
	return encMode.Marshal(&recordBody{
		WinnerID:   r.WinnerID,
		Bidders:    r.Bidders,
		Parties:    r.Parties,
		Strategy:   r.Strategy,
		Transcript: r.Transcript,
		StartedAt:  r.StartedAt.UnixMilli(),
		FinishedAt: r.FinishedAt.UnixMilli(),
	})
}

// DecodeRecord parses an encoded record and recomputes its ID.
func DecodeRecord(data []byte) (*Record, error) {
	var body recordBody
	if err := cbor.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	r := &Record{
		WinnerID:   body.WinnerID,
		Bidders:    body.Bidders,
		Parties:    body.Parties,
		Strategy:   body.Strategy,
		Transcript: body.Transcript,
		StartedAt:  time.UnixMilli(body.StartedAt).UTC(),
		FinishedAt: time.UnixMilli(body.FinishedAt).UTC(),
	}
	if err := r.Seal(); err != nil {
		return nil, err
	}
	return r, nil
}

// Digest hashes the encoded record.
func (r *Record) Digest() ([]byte, error) {
	data, err := r.Encode()
	if err != nil {
		return nil, err
	}
	h := blake3.New()
	_, _ = h.Write([]byte(recordDomain))
	_, _ = h.Write(data)
	return h.Sum(nil), nil
}

// Seal sets the ID from the digest.
func (r *Record) Seal() error {
	digest, err := r.Digest()
	if err != nil {
		return err
	}
	r.ID = hex.EncodeToString(digest)
	return nil
}

// Verify checks that the ID matches the record content.
func (r *Record) Verify() error {
	digest, err := r.Digest()
	if err != nil {
		return err
	}
	id, err := hex.DecodeString(r.ID)
	if err != nil || !bytes.Equal(id, digest) {
		return fmt.Errorf("%w: record %s", ErrDigestMismatch, r.ID)
	}
	return nil
}
