package discovery

import (
	"context"
	"fmt"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/regaccess"
	"github.com/distributed/ecatmaster/wire"
)

// category is one ETG.2000-style SII category: a type/length header
// followed by length words of payload.
type category struct {
	Type uint16
	Data []byte // little-endian words, flattened
}

// scanCategories walks the SII category table starting at
// ecaddr.SIICategoryTableStart until the end marker, per spec.md §4.3
// step 3/4. It stops at a generous word bound to guard against a
// malformed/never-terminated table.
func scanCategories(ctx context.Context, acc *regaccess.Accessor, addr wire.SlaveAddr) ([]category, error) {
	const maxWords = 0x0800
	var cats []category

	word := ecaddr.SIICategoryTableStart
	for uint32(word) < maxWords {
		header, err := acc.ReadSII(ctx, addr, word, 2)
		if err != nil {
			return cats, fmt.Errorf("discovery: read category header at word %#04x: %w", word, err)
		}
		catType := uint16(header[0]) | uint16(header[1])<<8
		catLen := uint16(header[2]) | uint16(header[3])<<8
		if catType == ecaddr.SIICategoryEnd {
			return cats, nil
		}

		var data []byte
		if catLen > 0 {
			data, err = acc.ReadSII(ctx, addr, word+2, int(catLen))
			if err != nil {
				return cats, fmt.Errorf("discovery: read category %d body: %w", catType, err)
			}
		}
		cats = append(cats, category{Type: catType, Data: data})
		word += 2 + catLen
	}
	return cats, nil
}

func findCategory(cats []category, t uint16) (category, bool) {
	for _, c := range cats {
		if c.Type == t {
			return c, true
		}
	}
	return category{}, false
}

// generalCategoryProtocols is a simplification of the real ETG.2000
// General category layout: this repo's simulated SII stores a single
// supported-protocols bitmask as the category's first byte (bit0=CoE,
// bit1=FoE, bit2=EoE, bit3=SoE), since the full General category layout
// (name/group/physical-port fields) carries no information this master
// core uses.
func generalCategoryProtocols(cats []category) (coe, foe, eoe, soe bool) {
	c, ok := findCategory(cats, ecaddr.SIICategoryGeneral)
	if !ok || len(c.Data) == 0 {
		return false, false, false, false
	}
	bits := c.Data[0]
	return bits&0x01 != 0, bits&0x02 != 0, bits&0x04 != 0, bits&0x08 != 0
}

// dcCapableFromCategory mirrors generalCategoryProtocols' simplification
// for the category-60 fallback path spec.md §4.3 step 3 names alongside
// register 0x0980.
func dcCapableFromCategory(cats []category) bool {
	c, ok := findCategory(cats, ecaddr.SIICategoryDClock)
	if !ok || len(c.Data) == 0 {
		return false
	}
	return c.Data[0] != 0
}

// dcCapableFromRegister reads the ETG.1000.4 register 0x0980 fallback.
func dcCapableFromRegister(ctx context.Context, acc *regaccess.Accessor, addr wire.SlaveAddr) (bool, error) {
	data, err := acc.ReadRegister(ctx, addr, wire.FPRD, ecaddr.DCSupportRegister, 1, 1)
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}
