// Package codec encodes variables into the compact blob stored in the
// archive's attrs column.
//
// Blob format (big-endian, no overall length prefix):
//   - Varcode (2 bytes)
//   - string/binary: payload bytes followed by a NUL terminator
//   - integer/decimal: fixed-point value as int32 (4 bytes)
//
// Records are written in ascending varcode order and unset variables are
// skipped. A reader consumes records until the buffer is exhausted; the
// payload type of each record comes from the variable dictionary.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/variable"
)

const (
	codeSize = 2
	intSize  = 4
)

// Encode encodes the set variables of vars. Attributes of vars are not
// encoded. Returns nil when nothing is set.
func Encode(vars []variable.Var) ([]byte, error) {
	sorted := make([]*variable.Var, 0, len(vars))
	for i := range vars {
		if vars[i].IsSet() {
			sorted = append(sorted, &vars[i])
		}
	}
	if len(sorted) == 0 {
		return nil, nil
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Code() < sorted[j].Code() })

	// Estimate size: code + int payload per record
	buf := make([]byte, 0, len(sorted)*(codeSize+intSize))
	for _, v := range sorted {
		var err error
		buf, err = appendVar(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// EncodeAttrs encodes the attribute list of v.
func EncodeAttrs(v *variable.Var) ([]byte, error) {
	return Encode(v.Attrs())
}

func appendVar(buf []byte, v *variable.Var) ([]byte, error) {
	buf = binary.BigEndian.AppendUint16(buf, uint16(v.Code()))

	switch v.Info().Type {
	case variable.TypeString:
		s, err := v.Str()
		if err != nil {
			return nil, err
		}
		return appendTerminated(buf, v.Code(), []byte(s))
	case variable.TypeBinary:
		b, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		return appendTerminated(buf, v.Code(), b)
	default:
		raw, err := v.Int()
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.AppendUint32(buf, uint32(raw)), nil
	}
}

func appendTerminated(buf []byte, code variable.Varcode, payload []byte) ([]byte, error) {
	if bytes.IndexByte(payload, 0) >= 0 {
		return nil, fmt.Errorf("%w: %s payload contains a NUL byte", dberrors.ErrConsistency, code)
	}
	buf = append(buf, payload...)
	return append(buf, 0), nil
}

// Decode decodes a blob written by Encode.
//
// Returns dberrors.ErrTruncated when the data ends inside a record and
// dberrors.ErrNotFound when a varcode is not in table.
func Decode(table *variable.Vartable, data []byte) ([]variable.Var, error) {
	var vars []variable.Var
	offset := 0

	for offset < len(data) {
		if len(data)-offset < codeSize {
			return nil, fmt.Errorf("%w: %d bytes left for varcode at offset %d",
				dberrors.ErrTruncated, len(data)-offset, offset)
		}
		code := variable.Varcode(binary.BigEndian.Uint16(data[offset:]))
		offset += codeSize

		info, err := table.Query(code)
		if err != nil {
			return nil, err
		}
		v := variable.New(info)

		switch info.Type {
		case variable.TypeString, variable.TypeBinary:
			end := bytes.IndexByte(data[offset:], 0)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated %s value at offset %d",
					dberrors.ErrTruncated, code, offset)
			}
			payload := data[offset : offset+end]
			if info.Type == variable.TypeString {
				err = v.SetString(string(payload))
			} else {
				err = v.SetBinary(payload)
			}
			offset += end + 1
		default:
			if len(data)-offset < intSize {
				return nil, fmt.Errorf("%w: %d bytes left for %s value at offset %d",
					dberrors.ErrTruncated, len(data)-offset, code, offset)
			}
			err = v.SetInt(int32(binary.BigEndian.Uint32(data[offset:])))
			offset += intSize
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", code, err)
		}
		vars = append(vars, v)
	}

	return vars, nil
}

// DecodeAttrs decodes an attribute blob and merges it into v.
func DecodeAttrs(table *variable.Vartable, v *variable.Var, data []byte) error {
	attrs, err := Decode(table, data)
	if err != nil {
		return err
	}
	v.SetAttrs(attrs)
	return nil
}
