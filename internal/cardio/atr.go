package cardio

import (
	"bytes"
	"encoding/hex"
	"strings"
)

type atrPattern struct {
	cardType CardType
	pattern  []byte
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// atrPatterns is checked in order; the first match wins.
var atrPatterns = []atrPattern{
	{TypeClassic1K, mustHex("3B8F8001804F0CA000000306030001000000006A")},
	{TypeClassic1K, mustHex("3B8F8001804F0CA0000003060300010000000068")},
	{TypeClassic4K, mustHex("3B8F8001804F0CA000000306030002000000006B")},
	{TypeClassic4K, mustHex("3B8F8001804F0CA0000003060300020000000069")},
	{TypeUltralight, mustHex("3B8080018080")},
	{TypeUltralight, mustHex("3B8F8001804F0CA000000306030003000000006C")},
	{TypeDESFireEV1, mustHex("3B8180018080")},
	{TypeDESFireEV1, mustHex("3B8A80018080")},
}

// Prefix fallbacks for ATRs outside the table.
var atrFamilies = []atrPattern{
	{TypeClassic1K, mustHex("3B8F8001804F0CA00000030603")},
	{TypeUltralight, mustHex("3B8080")},
	{TypeDESFireEV2, mustHex("3B8180")},
	{TypeDESFireEV2, mustHex("3B8A80")},
}

var cardSpecs = map[CardType]Specs{
	TypeClassic1K:   {MemorySize: 1024, SectorCount: 16, BlockCount: 64, BlockSize: 16},
	TypeClassic4K:   {MemorySize: 4096, SectorCount: 40, BlockCount: 256, BlockSize: 16},
	TypeUltralight:  {MemorySize: 512, BlockCount: 16, BlockSize: 4},
	TypeUltralightC: {MemorySize: 1536, BlockCount: 48, BlockSize: 4},
	TypeDESFireEV1:  {MemorySize: 8192},
	TypeDESFireEV2:  {MemorySize: 8192},
	TypeDESFireEV3:  {MemorySize: 8192},
}

// DetectType identifies the card family from an ATR.
func DetectType(atr []byte) CardType {
	for _, p := range atrPatterns {
		if bytes.Contains(atr, p.pattern) {
			return p.cardType
		}
	}
	for _, p := range atrFamilies {
		if bytes.Contains(atr, p.pattern) {
			return p.cardType
		}
	}
	return TypeUnknown
}

// SpecsFor returns the memory layout of t, or false for unknown families.
func SpecsFor(t CardType) (Specs, bool) {
	s, ok := cardSpecs[t]
	return s, ok
}

// ParseHex accepts "3B 8F 80", "3b:8f:80" and "3B8F80".
func ParseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	return hex.DecodeString(clean)
}

// FormatHex renders bytes as space-separated uppercase pairs.
func FormatHex(b []byte, sep string) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{c}))
	}
	return strings.Join(parts, sep)
}

// Identify enriches a reading with its type and specs.
func Identify(r Reading) Card {
	t := DetectType(r.ATR)
	card := Card{
		Reader: r.Reader,
		ATR:    FormatHex(r.ATR, " "),
		UID:    FormatHex(r.UID, ":"),
		Type:   t,
	}
	if specs, ok := SpecsFor(t); ok {
		card.Specs = &specs
	}
	return card
}
