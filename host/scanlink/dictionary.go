package scanlink

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// InputEnumeration is the dictionary enumeration naming converter inputs.
const InputEnumeration = "scan_input"

// Dictionary represents the parsed firmware dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// ParseDictionary decodes a dictionary as served by identify, zlib
// compressed or plain JSON.
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) >= 2 && data[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "dictionary")
		}
		defer r.Close()
		if data, err = io.ReadAll(r); err != nil {
			return nil, errors.Wrap(err, "dictionary")
		}
	}
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return nil, errors.Wrap(err, "dictionary")
	}
	return dict, nil
}

// messageName returns the name part of a "name arg=%x ..." key.
func messageName(key string) string {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		return key[:i]
	}
	return key
}

func lookup(m map[string]int, name string) (uint16, bool) {
	for key, id := range m {
		if messageName(key) == name {
			return uint16(id), true
		}
	}
	return 0, false
}

// CommandID returns the id of a host to firmware command.
func (d *Dictionary) CommandID(name string) (uint16, error) {
	id, ok := lookup(d.Commands, name)
	if !ok {
		return 0, errors.Errorf("firmware has no command %q", name)
	}
	return id, nil
}

// ResponseID returns the id of a firmware to host message.
func (d *Dictionary) ResponseID(name string) (uint16, error) {
	id, ok := lookup(d.Responses, name)
	if !ok {
		return 0, errors.Errorf("firmware has no response %q", name)
	}
	return id, nil
}

// ConstantUint returns a numeric firmware constant.
func (d *Dictionary) ConstantUint(name string) (uint32, error) {
	s, ok := d.Config[name]
	if !ok {
		return 0, errors.Errorf("firmware has no constant %q", name)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "constant %s", name)
	}
	return uint32(v), nil
}

// Selector resolves an input name from the scan_input enumeration, or a
// plain number.
func (d *Dictionary) Selector(name string) (uint8, error) {
	if inputs, ok := d.Enumerations[InputEnumeration]; ok {
		for n, v := range inputs {
			if strings.EqualFold(n, name) {
				return uint8(v), nil
			}
		}
	}
	v, err := strconv.ParseUint(name, 0, 8)
	if err != nil {
		return 0, errors.Errorf("unknown input %q", name)
	}
	return uint8(v), nil
}

// InputName returns the enumeration name of a selector, or its number.
func (d *Dictionary) InputName(sel uint8) string {
	for n, v := range d.Enumerations[InputEnumeration] {
		if v == int(sel) {
			return n
		}
	}
	return strconv.Itoa(int(sel))
}
