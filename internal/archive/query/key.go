package query

import (
	"fmt"
	"strings"
)

// Key names a query parameter or a result field.
type Key int

// Query and result keys.
const (
	KeyAnaID Key = iota
	KeyRepMemo
	KeyPriority
	KeyPrioMin
	KeyPrioMax
	KeyLat
	KeyLon
	KeyLatMin
	KeyLatMax
	KeyLonMin
	KeyLonMax
	KeyIdent
	KeyMobile
	KeyDatetime
	KeyDatetimeMin
	KeyDatetimeMax
	KeyLeveltype1
	KeyL1
	KeyLeveltype2
	KeyL2
	KeyPindicator
	KeyP1
	KeyP2
	KeyVar
	KeyVarlist
	KeyAttrFilter
	KeyLimit
	KeyQuery
	KeyContextID
	KeyValue

	numKeys
)

var keyNames = [numKeys]string{
	KeyAnaID:       "ana_id",
	KeyRepMemo:     "rep_memo",
	KeyPriority:    "priority",
	KeyPrioMin:     "priomin",
	KeyPrioMax:     "priomax",
	KeyLat:         "lat",
	KeyLon:         "lon",
	KeyLatMin:      "latmin",
	KeyLatMax:      "latmax",
	KeyLonMin:      "lonmin",
	KeyLonMax:      "lonmax",
	KeyIdent:       "ident",
	KeyMobile:      "mobile",
	KeyDatetime:    "datetime",
	KeyDatetimeMin: "datetimemin",
	KeyDatetimeMax: "datetimemax",
	KeyLeveltype1:  "leveltype1",
	KeyL1:          "l1",
	KeyLeveltype2:  "leveltype2",
	KeyL2:          "l2",
	KeyPindicator:  "pindicator",
	KeyP1:          "p1",
	KeyP2:          "p2",
	KeyVar:         "var",
	KeyVarlist:     "varlist",
	KeyAttrFilter:  "attr_filter",
	KeyLimit:       "limit",
	KeyQuery:       "query",
	KeyContextID:   "context_id",
	KeyValue:       "value",
}

var keysByName = func() map[string]Key {
	m := make(map[string]Key, numKeys)
	for k, name := range keyNames {
		m[name] = Key(k)
	}
	return m
}()

// String returns the key name.
func (k Key) String() string {
	if k < 0 || k >= numKeys {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return keyNames[k]
}

// ParseKey resolves a key name (case-insensitive).
func ParseKey(name string) (Key, error) {
	k, ok := keysByName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return k, nil
}
