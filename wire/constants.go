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

package wire

// Supported protocol version.
const (
	VERSION_MAJOR    = 0
	VERSION_MINOR    = 9
	VERSION_REVISION = 1
)

// ProtocolHeader is the 8 byte banner a client sends before any frame.
var ProtocolHeader = []byte{'A', 'M', 'Q', 'P', 0, VERSION_MAJOR, VERSION_MINOR, VERSION_REVISION}

// Frame types as they appear on the wire.
const (
	FRAME_METHOD    = 1
	FRAME_HEADER    = 2
	FRAME_BODY      = 3
	FRAME_HEARTBEAT = 8

	// Every frame ends with this octet.
	FRAME_END = 0xCE

	// Bytes of framing around a payload: 7 byte header plus the end octet.
	FRAME_OVERHEAD = 8
)

// Class ids.
const (
	CLASS_CONNECTION = 10
	CLASS_CHANNEL    = 20
	CLASS_EXCHANGE   = 40
	CLASS_QUEUE      = 50
	CLASS_BASIC      = 60
)

// Connection class method ids.
const (
	CONNECTION_START     = 10
	CONNECTION_START_OK  = 11
	CONNECTION_SECURE    = 20
	CONNECTION_SECURE_OK = 21
	CONNECTION_TUNE      = 30
	CONNECTION_TUNE_OK   = 31
	CONNECTION_OPEN      = 40
	CONNECTION_OPEN_OK   = 41
	CONNECTION_CLOSE     = 50
	CONNECTION_CLOSE_OK  = 51
)

// Channel class method ids.
const (
	CHANNEL_OPEN     = 10
	CHANNEL_OPEN_OK  = 11
	CHANNEL_FLOW     = 20
	CHANNEL_FLOW_OK  = 21
	CHANNEL_CLOSE    = 40
	CHANNEL_CLOSE_OK = 41
)

// Exchange class method ids. Note the unbind-ok assignment of 51 is the
// canonical one, the 0-9-1 grammar skips 41.
const (
	EXCHANGE_DECLARE    = 10
	EXCHANGE_DECLARE_OK = 11
	EXCHANGE_DELETE     = 20
	EXCHANGE_DELETE_OK  = 21
	EXCHANGE_BIND       = 30
	EXCHANGE_BIND_OK    = 31
	EXCHANGE_UNBIND     = 40
	EXCHANGE_UNBIND_OK  = 51
)

// Queue class method ids.
const (
	QUEUE_DECLARE    = 10
	QUEUE_DECLARE_OK = 11
	QUEUE_BIND       = 20
	QUEUE_BIND_OK    = 21
	QUEUE_PURGE      = 30
	QUEUE_PURGE_OK   = 31
	QUEUE_DELETE     = 40
	QUEUE_DELETE_OK  = 41
	QUEUE_UNBIND     = 50
	QUEUE_UNBIND_OK  = 51
)

// Basic class method ids.
const (
	BASIC_QOS        = 10
	BASIC_QOS_OK     = 11
	BASIC_CONSUME    = 20
	BASIC_CONSUME_OK = 21
	BASIC_CANCEL     = 30
	BASIC_CANCEL_OK  = 31
	BASIC_PUBLISH    = 40
	BASIC_RETURN     = 50
	BASIC_DELIVER    = 60
	BASIC_GET        = 70
	BASIC_GET_OK     = 71
	BASIC_GET_EMPTY  = 72
	BASIC_ACK        = 80
	BASIC_REJECT     = 90
	BASIC_RECOVER    = 110
	BASIC_RECOVER_OK = 111
	BASIC_NACK       = 120
)

// Reply codes.
const (
	REPLY_SUCCESS       = 200
	CONTENT_TOO_LARGE   = 311
	NO_CONSUMERS        = 313
	CONNECTION_FORCED   = 320
	INVALID_PATH        = 402
	ACCESS_REFUSED      = 403
	NOT_FOUND           = 404
	RESOURCE_LOCKED     = 405
	PRECONDITION_FAILED = 406
	FRAME_ERROR         = 501
	SYNTAX_ERROR        = 502
	COMMAND_INVALID     = 503
	CHANNEL_ERROR       = 504
	UNEXPECTED_FRAME    = 505
	RESOURCE_ERROR      = 506
	NOT_ALLOWED         = 530
	NOT_IMPLEMENTED     = 540
	INTERNAL_ERROR      = 541
)

// Client side defaults advertised during tune negotiation.
const (
	DEFAULT_FRAME_SIZE   = 131072
	DEFAULT_MAX_CHANNELS = 65535
	DEFAULT_HEARTBEAT    = 60

	DEFAULT_LOCALE    = "en_US"
	DEFAULT_MECHANISM = "PLAIN"
)
