/***** BEGIN LICENSE BLOCK *****
# This Source Code Form is subject to the terms of the Mozilla Public
# License, v. 2.0. If a copy of the MPL was not distributed with this file,
# You can obtain one at http://mozilla.org/MPL/2.0/.
#
# The Initial Developer of the Original Code is the Mozilla Foundation.
# Portions created by the Initial Developer are Copyright (C) 2014-2015
# the Initial Developer. All Rights Reserved.
#
# Contributor(s):
#   Ben Bangert (bbangert@mozilla.com)
#   Rob Miller (rmiller@mozilla.com)
#
# ***** END LICENSE BLOCK *****/

/*

Primitive read/write helpers for the AMQP 0-9-1 field grammar: network
byte order integers, shortstr, longstr, field tables, and field arrays.

*/
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Table is an AMQP field table. Values must be one of the types the field
// grammar can carry: bool, int8, int16, int32, int64, float32, float64,
// string, []byte, time.Time, Table, []interface{} or nil.
type Table map[string]interface{}

func writeOctet(w *bytes.Buffer, v uint8) {
	w.WriteByte(v)
}

func writeShort(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func writeLong(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeLonglong(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeShortstr(w *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint8 {
		return fmt.Errorf("shortstr too long: %d bytes", len(s))
	}
	w.WriteByte(uint8(len(s)))
	w.WriteString(s)
	return nil
}

func writeLongstr(w *bytes.Buffer, s []byte) {
	writeLong(w, uint32(len(s)))
	w.Write(s)
}

// writeTable serializes a field table: a long length prefix followed by
// name/value pairs, each value tagged with its grammar type octet.
func writeTable(w *bytes.Buffer, t Table) error {
	var body bytes.Buffer
	for name, value := range t {
		if err := writeShortstr(&body, name); err != nil {
			return err
		}
		if err := writeFieldValue(&body, value); err != nil {
			return fmt.Errorf("table field %q: %s", name, err)
		}
	}
	writeLongstr(w, body.Bytes())
	return nil
}

func writeArray(w *bytes.Buffer, a []interface{}) error {
	var body bytes.Buffer
	for _, value := range a {
		if err := writeFieldValue(&body, value); err != nil {
			return err
		}
	}
	writeLongstr(w, body.Bytes())
	return nil
}

func writeFieldValue(w *bytes.Buffer, value interface{}) (err error) {
	switch v := value.(type) {
	case nil:
		w.WriteByte('V')
	case bool:
		w.WriteByte('t')
		if v {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case int8:
		w.WriteByte('b')
		w.WriteByte(uint8(v))
	case int16:
		w.WriteByte('s')
		writeShort(w, uint16(v))
	case int32:
		w.WriteByte('I')
		writeLong(w, uint32(v))
	case int:
		w.WriteByte('I')
		writeLong(w, uint32(int32(v)))
	case int64:
		w.WriteByte('l')
		writeLonglong(w, uint64(v))
	case float32:
		w.WriteByte('f')
		writeLong(w, math.Float32bits(v))
	case float64:
		w.WriteByte('d')
		writeLonglong(w, math.Float64bits(v))
	case string:
		w.WriteByte('S')
		writeLongstr(w, []byte(v))
	case []byte:
		w.WriteByte('S')
		writeLongstr(w, v)
	case time.Time:
		w.WriteByte('T')
		writeLonglong(w, uint64(v.Unix()))
	case Table:
		w.WriteByte('F')
		err = writeTable(w, v)
	case []interface{}:
		w.WriteByte('A')
		err = writeArray(w, v)
	default:
		err = fmt.Errorf("unsupported table value type %T", value)
	}
	return
}

func readOctet(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readShort(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readLong(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readLonglong(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readShortstr(r io.Reader) (string, error) {
	size, err := readOctet(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readLongstr(r io.Reader) ([]byte, error) {
	size, err := readLong(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readTable(r io.Reader) (Table, error) {
	body, err := readLongstr(r)
	if err != nil {
		return nil, err
	}
	t := make(Table)
	br := bytes.NewReader(body)
	for br.Len() > 0 {
		name, err := readShortstr(br)
		if err != nil {
			return nil, err
		}
		value, err := readFieldValue(br)
		if err != nil {
			return nil, fmt.Errorf("table field %q: %s", name, err)
		}
		t[name] = value
	}
	return t, nil
}

func readArray(r io.Reader) ([]interface{}, error) {
	body, err := readLongstr(r)
	if err != nil {
		return nil, err
	}
	var a []interface{}
	br := bytes.NewReader(body)
	for br.Len() > 0 {
		value, err := readFieldValue(br)
		if err != nil {
			return nil, err
		}
		a = append(a, value)
	}
	return a, nil
}

func readFieldValue(r io.Reader) (interface{}, error) {
	tag, err := readOctet(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case 'V':
		return nil, nil
	case 't':
		v, err := readOctet(r)
		return v != 0, err
	case 'b':
		v, err := readOctet(r)
		return int8(v), err
	case 's':
		v, err := readShort(r)
		return int16(v), err
	case 'I':
		v, err := readLong(r)
		return int32(v), err
	case 'l':
		v, err := readLonglong(r)
		return int64(v), err
	case 'f':
		v, err := readLong(r)
		return math.Float32frombits(v), err
	case 'd':
		v, err := readLonglong(r)
		return math.Float64frombits(v), err
	case 'S':
		v, err := readLongstr(r)
		return string(v), err
	case 'T':
		v, err := readLonglong(r)
		return time.Unix(int64(v), 0), err
	case 'F':
		return readTable(r)
	case 'A':
		return readArray(r)
	}
	return nil, fmt.Errorf("unsupported table value tag %q", tag)
}
