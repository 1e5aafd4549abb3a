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

Table driven method argument codec. Each (class id, method id) pair maps
to an ordered field schema; a single generic encoder and decoder walk the
schema, packing runs of consecutive bit fields into shared octets the way
the 0-9-1 grammar requires.

*/
package wire

import (
	"bytes"
	"fmt"
	"io"
)

// Fields holds decoded method arguments, keyed by schema field name.
type Fields map[string]interface{}

// Typed accessors with grammar zero values for missing entries. Decoded
// frames always carry every schema field, these mostly serve call sites
// building frames by hand in tests.

func (f Fields) Uint8(name string) uint8 {
	v, _ := f[name].(uint8)
	return v
}

func (f Fields) Uint16(name string) uint16 {
	v, _ := f[name].(uint16)
	return v
}

func (f Fields) Uint32(name string) uint32 {
	v, _ := f[name].(uint32)
	return v
}

func (f Fields) Uint64(name string) uint64 {
	v, _ := f[name].(uint64)
	return v
}

func (f Fields) Bool(name string) bool {
	v, _ := f[name].(bool)
	return v
}

func (f Fields) String(name string) string {
	switch v := f[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (f Fields) Bytes(name string) []byte {
	switch v := f[name].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

func (f Fields) Table(name string) Table {
	v, _ := f[name].(Table)
	return v
}

type fieldType uint8

const (
	typeOctet fieldType = iota
	typeShort
	typeLong
	typeLonglong
	typeBit
	typeShortstr
	typeLongstr
	typeTable
)

type fieldSpec struct {
	name  string
	ftype fieldType
}

type methodSpec struct {
	name string
	// Method id of the synchronous reply, 0 when the method expects none
	// or is itself a reply.
	response uint16
	fields   []fieldSpec
}

func specKey(classId, methodId uint16) uint32 {
	return uint32(classId)<<16 | uint32(methodId)
}

var methodSpecs = map[uint32]*methodSpec{
	specKey(CLASS_CONNECTION, CONNECTION_START): {
		name: "connection.start",
		fields: []fieldSpec{
			{"version_major", typeOctet},
			{"version_minor", typeOctet},
			{"server_properties", typeTable},
			{"mechanisms", typeLongstr},
			{"locales", typeLongstr},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_START_OK): {
		name: "connection.start-ok",
		fields: []fieldSpec{
			{"client_properties", typeTable},
			{"mechanism", typeShortstr},
			{"response", typeLongstr},
			{"locale", typeShortstr},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_TUNE): {
		name:     "connection.tune",
		response: CONNECTION_TUNE_OK,
		fields: []fieldSpec{
			{"channel_max", typeShort},
			{"frame_max", typeLong},
			{"heartbeat", typeShort},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_TUNE_OK): {
		name: "connection.tune-ok",
		fields: []fieldSpec{
			{"channel_max", typeShort},
			{"frame_max", typeLong},
			{"heartbeat", typeShort},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_OPEN): {
		name:     "connection.open",
		response: CONNECTION_OPEN_OK,
		fields: []fieldSpec{
			{"virtual_host", typeShortstr},
			{"reserved_1", typeShortstr},
			{"reserved_2", typeBit},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_OPEN_OK): {
		name: "connection.open-ok",
		fields: []fieldSpec{
			{"reserved_1", typeShortstr},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_CLOSE): {
		name:     "connection.close",
		response: CONNECTION_CLOSE_OK,
		fields: []fieldSpec{
			{"reply_code", typeShort},
			{"reply_text", typeShortstr},
			{"class_id", typeShort},
			{"method_id", typeShort},
		},
	},
	specKey(CLASS_CONNECTION, CONNECTION_CLOSE_OK): {
		name: "connection.close-ok",
	},
	specKey(CLASS_CHANNEL, CHANNEL_OPEN): {
		name:     "channel.open",
		response: CHANNEL_OPEN_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShortstr},
		},
	},
	specKey(CLASS_CHANNEL, CHANNEL_OPEN_OK): {
		name: "channel.open-ok",
		fields: []fieldSpec{
			{"reserved_1", typeLongstr},
		},
	},
	specKey(CLASS_CHANNEL, CHANNEL_CLOSE): {
		name:     "channel.close",
		response: CHANNEL_CLOSE_OK,
		fields: []fieldSpec{
			{"reply_code", typeShort},
			{"reply_text", typeShortstr},
			{"class_id", typeShort},
			{"method_id", typeShort},
		},
	},
	specKey(CLASS_CHANNEL, CHANNEL_CLOSE_OK): {
		name: "channel.close-ok",
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_DECLARE): {
		name:     "exchange.declare",
		response: EXCHANGE_DECLARE_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"exchange", typeShortstr},
			{"type", typeShortstr},
			{"passive", typeBit},
			{"durable", typeBit},
			{"auto_delete", typeBit},
			{"internal", typeBit},
			{"no_wait", typeBit},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_DECLARE_OK): {
		name: "exchange.declare-ok",
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_DELETE): {
		name:     "exchange.delete",
		response: EXCHANGE_DELETE_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"exchange", typeShortstr},
			{"if_unused", typeBit},
			{"no_wait", typeBit},
		},
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_DELETE_OK): {
		name: "exchange.delete-ok",
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_BIND): {
		name:     "exchange.bind",
		response: EXCHANGE_BIND_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"destination", typeShortstr},
			{"source", typeShortstr},
			{"routing_key", typeShortstr},
			{"no_wait", typeBit},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_BIND_OK): {
		name: "exchange.bind-ok",
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_UNBIND): {
		name:     "exchange.unbind",
		response: EXCHANGE_UNBIND_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"destination", typeShortstr},
			{"source", typeShortstr},
			{"routing_key", typeShortstr},
			{"no_wait", typeBit},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_EXCHANGE, EXCHANGE_UNBIND_OK): {
		name: "exchange.unbind-ok",
	},
	specKey(CLASS_QUEUE, QUEUE_DECLARE): {
		name:     "queue.declare",
		response: QUEUE_DECLARE_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"queue", typeShortstr},
			{"passive", typeBit},
			{"durable", typeBit},
			{"exclusive", typeBit},
			{"auto_delete", typeBit},
			{"no_wait", typeBit},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_QUEUE, QUEUE_DECLARE_OK): {
		name: "queue.declare-ok",
		fields: []fieldSpec{
			{"queue", typeShortstr},
			{"message_count", typeLong},
			{"consumer_count", typeLong},
		},
	},
	specKey(CLASS_QUEUE, QUEUE_BIND): {
		name:     "queue.bind",
		response: QUEUE_BIND_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"queue", typeShortstr},
			{"exchange", typeShortstr},
			{"routing_key", typeShortstr},
			{"no_wait", typeBit},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_QUEUE, QUEUE_BIND_OK): {
		name: "queue.bind-ok",
	},
	specKey(CLASS_QUEUE, QUEUE_UNBIND): {
		name:     "queue.unbind",
		response: QUEUE_UNBIND_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"queue", typeShortstr},
			{"exchange", typeShortstr},
			{"routing_key", typeShortstr},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_QUEUE, QUEUE_UNBIND_OK): {
		name: "queue.unbind-ok",
	},
	specKey(CLASS_QUEUE, QUEUE_DELETE): {
		name:     "queue.delete",
		response: QUEUE_DELETE_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"queue", typeShortstr},
			{"if_unused", typeBit},
			{"if_empty", typeBit},
			{"no_wait", typeBit},
		},
	},
	specKey(CLASS_QUEUE, QUEUE_DELETE_OK): {
		name: "queue.delete-ok",
		fields: []fieldSpec{
			{"message_count", typeLong},
		},
	},
	specKey(CLASS_BASIC, BASIC_QOS): {
		name:     "basic.qos",
		response: BASIC_QOS_OK,
		fields: []fieldSpec{
			{"prefetch_size", typeLong},
			{"prefetch_count", typeShort},
			{"global", typeBit},
		},
	},
	specKey(CLASS_BASIC, BASIC_QOS_OK): {
		name: "basic.qos-ok",
	},
	specKey(CLASS_BASIC, BASIC_CONSUME): {
		name:     "basic.consume",
		response: BASIC_CONSUME_OK,
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"queue", typeShortstr},
			{"consumer_tag", typeShortstr},
			{"no_local", typeBit},
			{"no_ack", typeBit},
			{"exclusive", typeBit},
			{"no_wait", typeBit},
			{"arguments", typeTable},
		},
	},
	specKey(CLASS_BASIC, BASIC_CONSUME_OK): {
		name: "basic.consume-ok",
		fields: []fieldSpec{
			{"consumer_tag", typeShortstr},
		},
	},
	specKey(CLASS_BASIC, BASIC_CANCEL): {
		name:     "basic.cancel",
		response: BASIC_CANCEL_OK,
		fields: []fieldSpec{
			{"consumer_tag", typeShortstr},
			{"no_wait", typeBit},
		},
	},
	specKey(CLASS_BASIC, BASIC_CANCEL_OK): {
		name: "basic.cancel-ok",
		fields: []fieldSpec{
			{"consumer_tag", typeShortstr},
		},
	},
	specKey(CLASS_BASIC, BASIC_PUBLISH): {
		name: "basic.publish",
		fields: []fieldSpec{
			{"reserved_1", typeShort},
			{"exchange", typeShortstr},
			{"routing_key", typeShortstr},
			{"mandatory", typeBit},
			{"immediate", typeBit},
		},
	},
	specKey(CLASS_BASIC, BASIC_RETURN): {
		name: "basic.return",
		fields: []fieldSpec{
			{"reply_code", typeShort},
			{"reply_text", typeShortstr},
			{"exchange", typeShortstr},
			{"routing_key", typeShortstr},
		},
	},
	specKey(CLASS_BASIC, BASIC_DELIVER): {
		name: "basic.deliver",
		fields: []fieldSpec{
			{"consumer_tag", typeShortstr},
			{"delivery_tag", typeLonglong},
			{"redelivered", typeBit},
			{"exchange", typeShortstr},
			{"routing_key", typeShortstr},
		},
	},
	specKey(CLASS_BASIC, BASIC_ACK): {
		name: "basic.ack",
		fields: []fieldSpec{
			{"delivery_tag", typeLonglong},
			{"multiple", typeBit},
		},
	},
	specKey(CLASS_BASIC, BASIC_NACK): {
		name: "basic.nack",
		fields: []fieldSpec{
			{"delivery_tag", typeLonglong},
			{"multiple", typeBit},
			{"requeue", typeBit},
		},
	},
}

// MethodName returns the "class.method" name for known methods, or a
// numeric rendering for anything else.
func MethodName(classId, methodId uint16) string {
	if spec, ok := methodSpecs[specKey(classId, methodId)]; ok {
		return spec.name
	}
	return fmt.Sprintf("method(%d, %d)", classId, methodId)
}

// ResponseMethodId returns the method id of the synchronous reply paired
// with the given method, false when the method expects none.
func ResponseMethodId(classId, methodId uint16) (uint16, bool) {
	spec, ok := methodSpecs[specKey(classId, methodId)]
	if !ok || spec.response == 0 {
		return 0, false
	}
	return spec.response, true
}

func encodeFields(w *bytes.Buffer, classId, methodId uint16, fields Fields) error {
	spec, ok := methodSpecs[specKey(classId, methodId)]
	if !ok {
		return fmt.Errorf("no schema for method(%d, %d)", classId, methodId)
	}

	var bits uint8
	var bitShift uint
	flushBits := func() {
		if bitShift > 0 {
			writeOctet(w, bits)
			bits = 0
			bitShift = 0
		}
	}

	for _, field := range spec.fields {
		value := fields[field.name]
		if field.ftype != typeBit {
			flushBits()
		}
		switch field.ftype {
		case typeOctet:
			v, _ := value.(uint8)
			writeOctet(w, v)
		case typeShort:
			v, _ := value.(uint16)
			writeShort(w, v)
		case typeLong:
			v, _ := value.(uint32)
			writeLong(w, v)
		case typeLonglong:
			v, _ := value.(uint64)
			writeLonglong(w, v)
		case typeBit:
			if bitShift == 8 {
				flushBits()
			}
			if v, _ := value.(bool); v {
				bits |= 1 << bitShift
			}
			bitShift++
		case typeShortstr:
			v, _ := value.(string)
			if err := writeShortstr(w, v); err != nil {
				return fmt.Errorf("%s %s: %s", spec.name, field.name, err)
			}
		case typeLongstr:
			switch v := value.(type) {
			case string:
				writeLongstr(w, []byte(v))
			case []byte:
				writeLongstr(w, v)
			default:
				writeLongstr(w, nil)
			}
		case typeTable:
			v, _ := value.(Table)
			if err := writeTable(w, v); err != nil {
				return fmt.Errorf("%s %s: %s", spec.name, field.name, err)
			}
		}
	}
	flushBits()
	return nil
}

func decodeFields(r io.Reader, classId, methodId uint16) (Fields, error) {
	spec, ok := methodSpecs[specKey(classId, methodId)]
	if !ok {
		return nil, fmt.Errorf("no schema for method(%d, %d)", classId, methodId)
	}

	fields := make(Fields, len(spec.fields))
	var bits uint8
	var bitShift uint = 8 // forces a read on the first bit field

	for _, field := range spec.fields {
		if field.ftype != typeBit {
			bitShift = 8
		}
		var err error
		switch field.ftype {
		case typeOctet:
			fields[field.name], err = readOctet(r)
		case typeShort:
			fields[field.name], err = readShort(r)
		case typeLong:
			fields[field.name], err = readLong(r)
		case typeLonglong:
			fields[field.name], err = readLonglong(r)
		case typeBit:
			if bitShift == 8 {
				if bits, err = readOctet(r); err != nil {
					break
				}
				bitShift = 0
			}
			fields[field.name] = bits&(1<<bitShift) != 0
			bitShift++
		case typeShortstr:
			fields[field.name], err = readShortstr(r)
		case typeLongstr:
			fields[field.name], err = readLongstr(r)
		case typeTable:
			fields[field.name], err = readTable(r)
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %s", field.name, err)
		}
	}
	return fields, nil
}
