package variable

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vartable is the variable dictionary: it resolves codes to Varinfo and
// mnemonic aliases to codes.
//
// A Vartable is read-only after construction and safe for concurrent use.
type Vartable struct {
	infos   map[Varcode]*Varinfo
	aliases map[string]Varcode
}

// NewVartable builds a dictionary from entries and aliases.
// Later entries with the same code replace earlier ones.
func NewVartable(entries []Varinfo, aliases map[string]Varcode) *Vartable {
	t := &Vartable{
		infos:   make(map[Varcode]*Varinfo, len(entries)),
		aliases: make(map[string]Varcode, len(aliases)),
	}
	for i := range entries {
		info := entries[i]
		t.infos[info.Code] = &info
	}
	for name, code := range aliases {
		t.aliases[strings.ToLower(name)] = code
	}
	return t
}

// Query returns the dictionary entry for code.
// Returns ErrUnknownVarcode if the code is not in the table.
func (t *Vartable) Query(code Varcode) (*Varinfo, error) {
	info, ok := t.infos[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVarcode, code)
	}
	return info, nil
}

// Resolve turns an alias ("t") or a varcode string ("B12101") into a
// canonical code present in the dictionary.
func (t *Vartable) Resolve(name string) (Varcode, error) {
	if code, ok := t.aliases[strings.ToLower(name)]; ok {
		return code, nil
	}
	code, err := ParseVarcode(name)
	if err != nil {
		return 0, err
	}
	if _, err := t.Query(code); err != nil {
		return 0, err
	}
	return code, nil
}

// Codes returns all dictionary codes in ascending order.
func (t *Vartable) Codes() []Varcode {
	codes := make([]Varcode, 0, len(t.infos))
	for code := range t.infos {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// NewVar creates a set variable from a Go value. Accepted value types are
// int, int32, int64, float64, string and []byte; numeric values are physical
// values (273.15 for B12101), strings are parsed for numeric variables.
func (t *Vartable) NewVar(name string, value any) (Var, error) {
	code, err := t.Resolve(name)
	if err != nil {
		return Var{}, err
	}
	info, err := t.Query(code)
	if err != nil {
		return Var{}, err
	}

	v := New(info)
	switch val := value.(type) {
	case int:
		err = v.SetFloat(float64(val))
	case int32:
		err = v.SetFloat(float64(val))
	case int64:
		err = v.SetFloat(float64(val))
	case float64:
		err = v.SetFloat(val)
	case string:
		err = v.SetString(val)
	case []byte:
		err = v.SetBinary(val)
	default:
		err = fmt.Errorf("%w: unsupported Go type %T for %s", ErrTypeMismatch, value, code)
	}
	if err != nil {
		return Var{}, err
	}
	return v, nil
}

// vartableFile is the YAML layout of a dictionary extension file.
type vartableFile struct {
	Variables []struct {
		Code        string `yaml:"code"`
		Description string `yaml:"description"`
		Unit        string `yaml:"unit"`
		Type        string `yaml:"type"`
		Scale       int    `yaml:"scale"`
		Len         int    `yaml:"len"`
	} `yaml:"variables"`
	Aliases map[string]string `yaml:"aliases"`
}

// LoadVartable reads a YAML dictionary file and merges it over the defaults.
//
// File format:
//
//	variables:
//	  - code: B12102
//	    description: WET-BULB TEMPERATURE
//	    unit: K
//	    type: decimal
//	    scale: 2
//	aliases:
//	  tw: B12102
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - *Vartable: Defaults plus the file entries
//   - error: If the file cannot be read or contains invalid entries
func LoadVartable(path string) (*Vartable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vartable: %w", err)
	}
	return ParseVartable(data)
}

// ParseVartable parses YAML dictionary data and merges it over the defaults.
func ParseVartable(data []byte) (*Vartable, error) {
	var file vartableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing vartable: %w", err)
	}

	entries := defaultEntries()
	for _, e := range file.Variables {
		code, err := ParseVarcode(e.Code)
		if err != nil {
			return nil, err
		}
		typ, err := ParseType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Code, err)
		}
		entries = append(entries, Varinfo{
			Code:        code,
			Description: e.Description,
			Unit:        e.Unit,
			Type:        typ,
			Scale:       e.Scale,
			Len:         e.Len,
		})
	}

	aliases := defaultAliases()
	for name, codeStr := range file.Aliases {
		code, err := ParseVarcode(codeStr)
		if err != nil {
			return nil, fmt.Errorf("alias %s: %w", name, err)
		}
		aliases[name] = code
	}

	return NewVartable(entries, aliases), nil
}

// DefaultVartable returns the built-in dictionary of common surface
// observation variables.
func DefaultVartable() *Vartable {
	return NewVartable(defaultEntries(), defaultAliases())
}

func defaultEntries() []Varinfo {
	return []Varinfo{
		{Code: NewVarcode(0, 1, 1), Description: "WMO BLOCK NUMBER", Unit: "NUMERIC", Type: TypeInteger},
		{Code: NewVarcode(0, 1, 2), Description: "WMO STATION NUMBER", Unit: "NUMERIC", Type: TypeInteger},
		{Code: NewVarcode(0, 1, 11), Description: "SHIP OR MOBILE LAND STATION IDENTIFIER", Unit: "CCITTIA5", Type: TypeString, Len: 9},
		{Code: NewVarcode(0, 1, 19), Description: "LONG STATION OR SITE NAME", Unit: "CCITTIA5", Type: TypeString, Len: 32},
		{Code: NewVarcode(0, 1, 194), Description: "REPORT MNEMONIC", Unit: "CCITTIA5", Type: TypeString, Len: 20},
		{Code: NewVarcode(0, 4, 1), Description: "YEAR", Unit: "YEAR", Type: TypeInteger},
		{Code: NewVarcode(0, 4, 2), Description: "MONTH", Unit: "MONTH", Type: TypeInteger},
		{Code: NewVarcode(0, 4, 3), Description: "DAY", Unit: "DAY", Type: TypeInteger},
		{Code: NewVarcode(0, 4, 4), Description: "HOUR", Unit: "HOUR", Type: TypeInteger},
		{Code: NewVarcode(0, 4, 5), Description: "MINUTE", Unit: "MINUTE", Type: TypeInteger},
		{Code: NewVarcode(0, 4, 6), Description: "SECOND", Unit: "SECOND", Type: TypeInteger},
		{Code: NewVarcode(0, 5, 1), Description: "LATITUDE (HIGH ACCURACY)", Unit: "DEGREE", Type: TypeDecimal, Scale: 5},
		{Code: NewVarcode(0, 6, 1), Description: "LONGITUDE (HIGH ACCURACY)", Unit: "DEGREE", Type: TypeDecimal, Scale: 5},
		{Code: NewVarcode(0, 7, 30), Description: "HEIGHT OF STATION GROUND ABOVE MEAN SEA LEVEL", Unit: "M", Type: TypeDecimal, Scale: 1},
		{Code: NewVarcode(0, 7, 31), Description: "HEIGHT OF BAROMETER ABOVE MEAN SEA LEVEL", Unit: "M", Type: TypeDecimal, Scale: 1},
		{Code: NewVarcode(0, 10, 4), Description: "PRESSURE", Unit: "PA", Type: TypeDecimal, Scale: -1},
		{Code: NewVarcode(0, 10, 51), Description: "PRESSURE REDUCED TO MEAN SEA LEVEL", Unit: "PA", Type: TypeDecimal, Scale: -1},
		{Code: NewVarcode(0, 11, 1), Description: "WIND DIRECTION", Unit: "DEGREE TRUE", Type: TypeInteger},
		{Code: NewVarcode(0, 11, 2), Description: "WIND SPEED", Unit: "M/S", Type: TypeDecimal, Scale: 1},
		{Code: NewVarcode(0, 12, 101), Description: "TEMPERATURE/AIR TEMPERATURE", Unit: "K", Type: TypeDecimal, Scale: 2},
		{Code: NewVarcode(0, 12, 103), Description: "DEW-POINT TEMPERATURE", Unit: "K", Type: TypeDecimal, Scale: 2},
		{Code: NewVarcode(0, 13, 3), Description: "RELATIVE HUMIDITY", Unit: "%", Type: TypeInteger},
		{Code: NewVarcode(0, 13, 11), Description: "TOTAL PRECIPITATION / TOTAL WATER EQUIVALENT", Unit: "KG/M**2", Type: TypeDecimal, Scale: 1},
		{Code: NewVarcode(0, 13, 13), Description: "TOTAL SNOW DEPTH", Unit: "M", Type: TypeDecimal, Scale: 3},
		{Code: NewVarcode(0, 20, 1), Description: "HORIZONTAL VISIBILITY", Unit: "M", Type: TypeDecimal, Scale: -1},
		{Code: NewVarcode(0, 33, 7), Description: "PER CENT CONFIDENCE", Unit: "%", Type: TypeInteger},
		{Code: NewVarcode(0, 33, 192), Description: "CLIMATOLOGICAL AND CONSISTENCY CHECK", Unit: "%", Type: TypeInteger},
		{Code: NewVarcode(0, 33, 196), Description: "DATA HAS BEEN INVALIDATED", Unit: "FLAG TABLE", Type: TypeInteger},
	}
}

func defaultAliases() map[string]Varcode {
	return map[string]Varcode{
		"block":      NewVarcode(0, 1, 1),
		"station":    NewVarcode(0, 1, 2),
		"name":       NewVarcode(0, 1, 19),
		"height":     NewVarcode(0, 7, 30),
		"heightbaro": NewVarcode(0, 7, 31),
		"p":          NewVarcode(0, 10, 4),
		"mslp":       NewVarcode(0, 10, 51),
		"wd":         NewVarcode(0, 11, 1),
		"ws":         NewVarcode(0, 11, 2),
		"t":          NewVarcode(0, 12, 101),
		"td":         NewVarcode(0, 12, 103),
		"rh":         NewVarcode(0, 13, 3),
		"tp":         NewVarcode(0, 13, 11),
	}
}
