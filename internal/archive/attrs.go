package archive

import (
	"context"
	"fmt"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/codec"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// ValueKind selects the table holding a value addressed by id.
type ValueKind int

const (
	// DataValue addresses measured values (Datum.ID).
	DataValue ValueKind = iota
	// StationValue addresses station values (StationDatum.ID).
	StationValue
)

func (k ValueKind) table() string {
	if k == StationValue {
		return "station_data"
	}
	return "data"
}

// String returns the kind name.
func (k ValueKind) String() string {
	if k == StationValue {
		return "station"
	}
	return "data"
}

// loadValue reads the code and attributes of a stored value into a Var
// that carries only the attributes.
func loadValue(ctx context.Context, conn *backend.Conn, table *variable.Vartable, kind ValueKind, id int64) (variable.Var, error) {
	var (
		code  int
		attrs []byte
	)
	stmt := "SELECT code, attrs FROM " + kind.table() + " WHERE id = ?"
	if err := conn.QueryRow(ctx, stmt, id).Scan(&code, &attrs); err != nil {
		return variable.Var{}, fmt.Errorf("%s value %d: %w", kind, id, err)
	}

	info, err := table.Query(variable.Varcode(code))
	if err != nil {
		return variable.Var{}, err
	}
	v := variable.New(info)
	if len(attrs) > 0 {
		if err := codec.DecodeAttrs(table, &v, attrs); err != nil {
			return variable.Var{}, fmt.Errorf("decoding attributes of %s value %d: %w", kind, id, err)
		}
	}
	return v, nil
}

func storeAttrs(ctx context.Context, conn *backend.Conn, kind ValueKind, id int64, v *variable.Var) error {
	blob, err := codec.EncodeAttrs(v)
	if err != nil {
		return err
	}
	var arg any
	if len(blob) > 0 {
		arg = blob
	}
	_, err = conn.Exec(ctx, "UPDATE "+kind.table()+" SET attrs = ? WHERE id = ?", arg, id)
	return err
}

func attrQuery(ctx context.Context, conn *backend.Conn, table *variable.Vartable, kind ValueKind, id int64) ([]variable.Var, error) {
	v, err := loadValue(ctx, conn, table, kind, id)
	if err != nil {
		return nil, err
	}
	return v.Attrs(), nil
}

func attrInsert(ctx context.Context, conn *backend.Conn, table *variable.Vartable, kind ValueKind, id int64, attrs []variable.Var) error {
	v, err := loadValue(ctx, conn, table, kind, id)
	if err != nil {
		return err
	}
	v.SetAttrs(attrs)
	return storeAttrs(ctx, conn, kind, id, &v)
}

func attrRemove(ctx context.Context, conn *backend.Conn, table *variable.Vartable, kind ValueKind, id int64, codes []variable.Varcode) error {
	v, err := loadValue(ctx, conn, table, kind, id)
	if err != nil {
		return err
	}
	v.RemoveAttrs(codes...)
	return storeAttrs(ctx, conn, kind, id, &v)
}
