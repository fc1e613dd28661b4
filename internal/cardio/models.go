// Package cardio talks to contactless card readers: listing readers,
// scanning them for cards and identifying the card family from its ATR.
package cardio

import "errors"

// ErrNoCard is returned by a Device when a reader has no card present.
var ErrNoCard = errors.New("no card present")

type CardType string

const (
	TypeClassic1K   CardType = "MIFARE Classic 1K"
	TypeClassic4K   CardType = "MIFARE Classic 4K"
	TypeUltralight  CardType = "MIFARE Ultralight"
	TypeUltralightC CardType = "MIFARE Ultralight C"
	TypeDESFireEV1  CardType = "MIFARE DESFire EV1"
	TypeDESFireEV2  CardType = "MIFARE DESFire EV2"
	TypeDESFireEV3  CardType = "MIFARE DESFire EV3"
	TypeUnknown     CardType = "Unknown MIFARE"
)

// Specs describes a card family's memory layout. Zero values mean the layout
// is application-defined.
type Specs struct {
	MemorySize  int `json:"memory_size"`
	SectorCount int `json:"sector_count"`
	BlockCount  int `json:"block_count"`
	BlockSize   int `json:"block_size"`
}

// Reading is what a Device reports for a present card.
type Reading struct {
	Reader string
	ATR    []byte
	UID    []byte
}

// Card is a reading enriched with its detected type.
type Card struct {
	Reader string   `json:"reader"`
	ATR    string   `json:"atr"`
	UID    string   `json:"uid,omitempty"`
	Type   CardType `json:"type"`
	Specs  *Specs   `json:"specs,omitempty"`
}
