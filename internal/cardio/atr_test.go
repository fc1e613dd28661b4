package cardio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		atr  string
		want CardType
	}{
		{"classic 1k", "3B8F8001804F0CA000000306030001000000006A", TypeClassic1K},
		{"classic 1k alternate checksum", "3B8F8001804F0CA0000003060300010000000068", TypeClassic1K},
		{"classic 4k", "3B8F8001804F0CA000000306030002000000006B", TypeClassic4K},
		{"ultralight short", "3B8080018080", TypeUltralight},
		{"ultralight long", "3B8F8001804F0CA000000306030003000000006C", TypeUltralight},
		{"desfire ev1", "3B8180018080", TypeDESFireEV1},
		{"desfire ev1 alternate", "3B8A80018080", TypeDESFireEV1},
		{"classic family fallback", "3B8F8001804F0CA0000003060300FF00000000", TypeClassic1K},
		{"ultralight family fallback", "3B8080FF", TypeUltralight},
		{"desfire family fallback", "3B8180FF", TypeDESFireEV2},
		{"unknown", "3B00", TypeUnknown},
		{"empty", "", TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atr, err := ParseHex(tt.atr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, DetectType(atr))
		})
	}
}

func TestSpecsFor(t *testing.T) {
	specs, ok := SpecsFor(TypeClassic4K)
	require.True(t, ok)
	assert.Equal(t, Specs{MemorySize: 4096, SectorCount: 40, BlockCount: 256, BlockSize: 16}, specs)

	_, ok = SpecsFor(TypeUnknown)
	assert.False(t, ok)
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"3B 8F 80", "3b:8f:80", "3B8F80"} {
		b, err := ParseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{0x3B, 0x8F, 0x80}, b, in)
	}
	_, err := ParseHex("3G")
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	card := Identify(Reading{
		Reader: "ACS ACR122U 00",
		ATR:    []byte{0x3B, 0x81, 0x80, 0x01, 0x80, 0x80},
		UID:    []byte{0x04, 0xA2, 0x1f},
	})
	assert.Equal(t, "3B 81 80 01 80 80", card.ATR)
	assert.Equal(t, "04:A2:1F", card.UID)
	assert.Equal(t, TypeDESFireEV1, card.Type)
	require.NotNil(t, card.Specs)
	assert.Equal(t, 8192, card.Specs.MemorySize)

	unknown := Identify(Reading{Reader: "r", ATR: []byte{0x3B, 0x00}})
	assert.Nil(t, unknown.Specs)
	assert.Empty(t, unknown.UID)
}
