package keyenc

import (
	"fmt"
	"strconv"
	"strings"
)

// ChainKey identifies a logical object. It carries the application-supplied
// structured key both in its original form and as the canonical serial
// produced by Serialize, which is stable for set/order-insensitive equality
// (spec.md §3).
type ChainKey struct {
	Structured any
	Serial     string
}

// NewChainKey builds a ChainKey from an application-supplied structured
// key, converting it through FromAny and serializing the result.
func NewChainKey(structured any) (ChainKey, error) {
	val, err := FromAny(structured)
	if err != nil {
		return ChainKey{}, err
	}
	serial, err := Serialize(val)
	if err != nil {
		return ChainKey{}, err
	}
	return ChainKey{Structured: structured, Serial: serial}, nil
}

// Version identifies one point in a chain's history: Base is the
// backend-minted snapshot identifier, Sub is 0 for the server-pushed
// initial record and a client-chosen random positive integer for a local
// mutation layered on top of it (spec.md §3).
type Version struct {
	Base string
	Sub  uint32
}

// IsInitial reports whether v is the server-pushed initial version of its
// base (Sub == 0).
func (v Version) IsInitial() bool {
	return v.Sub == 0
}

// Initial returns the initial version sharing v's base.
func (v Version) Initial() Version {
	return Version{Base: v.Base}
}

// Equal reports whether v and other identify the same version.
func (v Version) Equal(other Version) bool {
	return v.Base == other.Base && v.Sub == other.Sub
}

// Serial renders v in the canonical form used as a KV key component:
// "<base>/<sub>", with base itself escaped so an embedded "/" cannot be
// mistaken for the separator.
func (v Version) Serial() string {
	return escapeSegment(v.Base) + "/" + strconv.FormatUint(uint64(v.Sub), 10)
}

func (v Version) String() string {
	return fmt.Sprintf("(%s,%d)", v.Base, v.Sub)
}

// RecordKey identifies a single stored record: the chain it belongs to and
// the version within that chain.
type RecordKey struct {
	Chain   ChainKey
	Version Version
}

// Serial renders the RecordKey as chainKey.Serial ++ version.Serial, the KV
// key used in the "records" object store (spec.md §3, §6).
func (k RecordKey) Serial() string {
	return k.Chain.Serial + "|" + k.Version.Serial()
}

func escapeSegment(s string) string {
	if !strings.ContainsAny(s, "/\\") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '/' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
