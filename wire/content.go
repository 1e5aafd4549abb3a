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

import (
	"bytes"
	"io"
	"time"
)

// Property flag bits for the basic class content header.
const (
	flagContentType     = 0x8000
	flagContentEncoding = 0x4000
	flagHeaders         = 0x2000
	flagDeliveryMode    = 0x1000
	flagPriority        = 0x0800
	flagCorrelationId   = 0x0400
	flagReplyTo         = 0x0200
	flagExpiration      = 0x0100
	flagMessageId       = 0x0080
	flagTimestamp       = 0x0040
	flagType            = 0x0020
	flagUserId          = 0x0010
	flagAppId           = 0x0008
	flagReserved1       = 0x0004
)

// BasicProperties are the content header properties of the basic class.
// Zero valued fields are omitted from the encoded property list.
type BasicProperties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationId   string
	ReplyTo         string
	Expiration      string
	MessageId       string
	Timestamp       time.Time
	Type            string
	UserId          string
	AppId           string
}

func (p *BasicProperties) encode(w *bytes.Buffer) error {
	var flags uint16
	if p.ContentType != "" {
		flags |= flagContentType
	}
	if p.ContentEncoding != "" {
		flags |= flagContentEncoding
	}
	if p.Headers != nil {
		flags |= flagHeaders
	}
	if p.DeliveryMode > 0 {
		flags |= flagDeliveryMode
	}
	if p.Priority > 0 {
		flags |= flagPriority
	}
	if p.CorrelationId != "" {
		flags |= flagCorrelationId
	}
	if p.ReplyTo != "" {
		flags |= flagReplyTo
	}
	if p.Expiration != "" {
		flags |= flagExpiration
	}
	if p.MessageId != "" {
		flags |= flagMessageId
	}
	if !p.Timestamp.IsZero() {
		flags |= flagTimestamp
	}
	if p.Type != "" {
		flags |= flagType
	}
	if p.UserId != "" {
		flags |= flagUserId
	}
	if p.AppId != "" {
		flags |= flagAppId
	}

	writeShort(w, flags)

	if flags&flagContentType > 0 {
		if err := writeShortstr(w, p.ContentType); err != nil {
			return err
		}
	}
	if flags&flagContentEncoding > 0 {
		if err := writeShortstr(w, p.ContentEncoding); err != nil {
			return err
		}
	}
	if flags&flagHeaders > 0 {
		if err := writeTable(w, p.Headers); err != nil {
			return err
		}
	}
	if flags&flagDeliveryMode > 0 {
		writeOctet(w, p.DeliveryMode)
	}
	if flags&flagPriority > 0 {
		writeOctet(w, p.Priority)
	}
	if flags&flagCorrelationId > 0 {
		if err := writeShortstr(w, p.CorrelationId); err != nil {
			return err
		}
	}
	if flags&flagReplyTo > 0 {
		if err := writeShortstr(w, p.ReplyTo); err != nil {
			return err
		}
	}
	if flags&flagExpiration > 0 {
		if err := writeShortstr(w, p.Expiration); err != nil {
			return err
		}
	}
	if flags&flagMessageId > 0 {
		if err := writeShortstr(w, p.MessageId); err != nil {
			return err
		}
	}
	if flags&flagTimestamp > 0 {
		writeLonglong(w, uint64(p.Timestamp.Unix()))
	}
	if flags&flagType > 0 {
		if err := writeShortstr(w, p.Type); err != nil {
			return err
		}
	}
	if flags&flagUserId > 0 {
		if err := writeShortstr(w, p.UserId); err != nil {
			return err
		}
	}
	if flags&flagAppId > 0 {
		if err := writeShortstr(w, p.AppId); err != nil {
			return err
		}
	}
	return nil
}

func (p *BasicProperties) decode(r io.Reader) (err error) {
	var flags uint16
	if flags, err = readShort(r); err != nil {
		return
	}
	if flags&flagContentType > 0 {
		if p.ContentType, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagContentEncoding > 0 {
		if p.ContentEncoding, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagHeaders > 0 {
		if p.Headers, err = readTable(r); err != nil {
			return
		}
	}
	if flags&flagDeliveryMode > 0 {
		if p.DeliveryMode, err = readOctet(r); err != nil {
			return
		}
	}
	if flags&flagPriority > 0 {
		if p.Priority, err = readOctet(r); err != nil {
			return
		}
	}
	if flags&flagCorrelationId > 0 {
		if p.CorrelationId, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagReplyTo > 0 {
		if p.ReplyTo, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagExpiration > 0 {
		if p.Expiration, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagMessageId > 0 {
		if p.MessageId, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagTimestamp > 0 {
		var ts uint64
		if ts, err = readLonglong(r); err != nil {
			return
		}
		p.Timestamp = time.Unix(int64(ts), 0)
	}
	if flags&flagType > 0 {
		if p.Type, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagUserId > 0 {
		if p.UserId, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagAppId > 0 {
		if p.AppId, err = readShortstr(r); err != nil {
			return
		}
	}
	if flags&flagReserved1 > 0 {
		if _, err = readShortstr(r); err != nil {
			return
		}
	}
	return
}
