package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// BetType distinguishes the two markets a Prediction can target.
type BetType int

const (
	Moneyline BetType = iota
	OverUnder
)

func (b BetType) String() string {
	if b == OverUnder {
		return "over_under"
	}
	return "moneyline"
}

// Selection is the tagged variant over the five canonical picks: three
// moneyline outcomes and two over/under outcomes. It replaces the source's
// polymorphic string-or-hash selection input with a closed Go type.
type Selection struct {
	ml MoneylineResult
	ou OverUnderResult
	is BetType
}

// Canonical selection strings.
const (
	selHome  = "1"
	selDraw  = "X"
	selAway  = "2"
	selOver  = "Over"
	selUnder = "Under"
)

func SelHome() Selection  { return Selection{is: Moneyline, ml: MoneylineHome} }
func SelDraw() Selection  { return Selection{is: Moneyline, ml: MoneylineDraw} }
func SelAway() Selection  { return Selection{is: Moneyline, ml: MoneylineAway} }
func SelOver() Selection  { return Selection{is: OverUnder, ou: Over} }
func SelUnder() Selection { return Selection{is: OverUnder, ou: Under} }

// BetType reports which market this selection belongs to.
func (s Selection) BetType() BetType { return s.is }

// Moneyline returns the moneyline outcome; only meaningful when
// BetType() == Moneyline.
func (s Selection) Moneyline() MoneylineResult { return s.ml }

// OverUnder returns the over/under outcome; only meaningful when
// BetType() == OverUnder.
func (s Selection) OverUnder() OverUnderResult { return s.ou }

// Canonical renders the selection in its canonical string form.
func (s Selection) Canonical() string {
	if s.is == Moneyline {
		switch s.ml {
		case MoneylineHome:
			return selHome
		case MoneylineDraw:
			return selDraw
		case MoneylineAway:
			return selAway
		}
	}
	switch s.ou {
	case Over:
		return selOver
	case Under:
		return selUnder
	}
	return ""
}

// allCanonical enumerates the five canonical strings for round-trip tests
// and hash-form recognition.
var allCanonical = []Selection{SelHome(), SelDraw(), SelAway(), SelOver(), SelUnder()}

// ParseCanonical parses one of the five canonical strings (case-insensitive
// for Over/Under; "1"/"X"/"2" are case-sensitive by construction) into a
// Selection.
func ParseCanonical(s string) (Selection, error) {
	switch s {
	case selHome:
		return SelHome(), nil
	case selDraw:
		return SelDraw(), nil
	case selAway:
		return SelAway(), nil
	}
	switch strings.ToLower(s) {
	case "over":
		return SelOver(), nil
	case "under":
		return SelUnder(), nil
	}
	return Selection{}, fmt.Errorf("domain: %q is not a canonical selection", s)
}

// Keccak256 returns the 32-byte keccak hash of the canonical selection
// string, the on-chain wire form (selection:bytes32).
func (s Selection) Keccak256() [32]byte {
	return keccak(s.Canonical())
}

// KeccakHex returns the 0x-prefixed hex encoding of Keccak256().
func (s Selection) KeccakHex() string {
	h := s.Keccak256()
	return "0x" + hex.EncodeToString(h[:])
}

func keccak(s string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ParseSelectionInput accepts either a human-readable canonical string or a
// 32-byte (or 0x-prefixed 64-hex-char) keccak hash of one. It returns the
// canonical Selection on success.
func ParseSelectionInput(raw string) (Selection, error) {
	if sel, err := ParseCanonical(raw); err == nil {
		return sel, nil
	}

	trimmed := strings.TrimPrefix(strings.ToLower(raw), "0x")
	if len(trimmed) != 64 {
		return Selection{}, fmt.Errorf("domain: selection %q is neither canonical nor a 32-byte hash", raw)
	}
	want, err := hex.DecodeString(trimmed)
	if err != nil {
		return Selection{}, fmt.Errorf("domain: decode selection hash %q: %w", raw, err)
	}

	for _, sel := range allCanonical {
		got := sel.Keccak256()
		if hex.EncodeToString(got[:]) == hex.EncodeToString(want) {
			return sel, nil
		}
	}
	return Selection{}, fmt.Errorf("domain: selection hash %q matches no canonical selection", raw)
}
