package models

// Couple is the stored value for a hash bucket entry.
// AnchorTimeMs is the time (in ms) of the anchor peak in the reference audio.
type Couple struct {
	ReferenceID  string // UUID of the reference signature
	AnchorTimeMs uint32
}

// Alignment is a candidate produced by offset voting.
type Alignment struct {
	ReferenceID string
	OffsetMs    int32 // referenceAnchorTimeMs - queryAnchorTimeMs
	Count       int
}
