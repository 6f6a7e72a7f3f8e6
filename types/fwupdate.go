package types

import "ecservice-go/errcode"

// FwChunkBytes is the fixed data capacity of one update chunk.
const FwChunkBytes = 64

type FwBegin struct {
	TotalSize uint32 `cbor:"1,keyasint"`
	CRC32     uint32 `cbor:"2,keyasint"` // IEEE over the whole image
}

type FwChunk struct {
	Offset uint32             `cbor:"1,keyasint"`
	Len    uint8              `cbor:"2,keyasint"`
	Data   [FwChunkBytes]byte `cbor:"3,keyasint"`
}

// Bytes returns the valid part of Data.
func (c *FwChunk) Bytes() []byte {
	return c.Data[:min(int(c.Len), FwChunkBytes)]
}

type FwFinalize struct{}
type GetFwStatus struct{}

type FwPhase uint8

const (
	FwIdle FwPhase = iota
	FwReceiving
	FwVerified
	FwFailed
)

func (p FwPhase) String() string {
	switch p {
	case FwIdle:
		return "idle"
	case FwReceiving:
		return "receiving"
	case FwVerified:
		return "verified"
	case FwFailed:
		return "failed"
	}
	return "phase?"
}

type FwStatus struct {
	Phase    FwPhase      `cbor:"1,keyasint"`
	Received uint32       `cbor:"2,keyasint"`
	Total    uint32       `cbor:"3,keyasint"`
	Err      errcode.Code `cbor:"4,keyasint"`
}

func (FwBegin) Discriminant() uint16     { return DiscFwBegin }
func (FwChunk) Discriminant() uint16     { return DiscFwChunk }
func (FwFinalize) Discriminant() uint16  { return DiscFwFinalize }
func (GetFwStatus) Discriminant() uint16 { return DiscGetFwStatus }
func (FwStatus) Discriminant() uint16    { return DiscFwStatus }
