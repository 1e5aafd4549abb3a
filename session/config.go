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

package session

import (
	"time"

	"github.com/mozilla-services/carrot/tcp"
	"github.com/mozilla-services/carrot/wire"
)

// Callback receives each assembled delivery from the consume loop. The
// body, frame arguments and properties are borrowed views owned by the
// loop, they must not be retained past the call. A non-nil error turns
// the auto-ack into a basic.nack.
type Callback func(delivery *Delivery) error

// Config carries every session level option. Timeouts are milliseconds,
// the heartbeat interval is seconds.
type Config struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Ssl            bool   `toml:"ssl"`
	ConnectTimeout uint32 `toml:"connect_timeout"`
	ReadTimeout    uint32 `toml:"read_timeout"`
	Heartbeat      uint16 `toml:"heartbeat"`

	User        string `toml:"user"`
	Password    string `toml:"password"`
	VirtualHost string `toml:"virtual_host"`

	// Either "consumer" or "publisher". A consumer requires Queue.
	Role       string `toml:"role"`
	Exchange   string `toml:"exchange"`
	Queue      string `toml:"queue"`
	RoutingKey string `toml:"routing_key"`
	Channel    uint16 `toml:"channel"`

	FrameMax   uint32 `toml:"frame_max"`
	ChannelMax uint16 `toml:"channel_max"`

	// NoAck is the single source of truth for the consume loop's ack
	// path: when false every delivery is acked (or nacked) after the
	// callback returns.
	NoAck         bool   `toml:"no_ack"`
	PrefetchCount uint16 `toml:"prefetch_count"`

	Locale    string `toml:"locale"`
	Mechanism string `toml:"mechanism"`

	Tls tcp.TlsConfig `toml:"tls"`

	Callback Callback `toml:"-"`
}

// NewConfig returns a Config with every protocol default applied.
func NewConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           5672,
		ConnectTimeout: 5000,
		ReadTimeout:    30000,
		Heartbeat:      wire.DEFAULT_HEARTBEAT,
		User:           "guest",
		Password:       "guest",
		VirtualHost:    "/",
		Role:           "consumer",
		Channel:        1,
		FrameMax:       wire.DEFAULT_FRAME_SIZE,
		ChannelMax:     wire.DEFAULT_MAX_CHANNELS,
		Locale:         wire.DEFAULT_LOCALE,
		Mechanism:      wire.DEFAULT_MECHANISM,
	}
}

func (c *Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Millisecond
}

func (c *Config) readTimeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Millisecond
}

// Per call option structs. A nil options value means the documented
// defaults; option resolution is per-call value, then session config,
// then protocol default.

// QueueOpts modify queue.declare.
type QueueOpts struct {
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  wire.Table
}

func NewQueueOpts() *QueueOpts {
	return &QueueOpts{AutoDelete: true}
}

// QueueDeleteOpts modify queue.delete.
type QueueDeleteOpts struct {
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

// ExchangeOpts modify exchange.declare.
type ExchangeOpts struct {
	Type       string
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  wire.Table
}

func NewExchangeOpts() *ExchangeOpts {
	return &ExchangeOpts{Type: "topic"}
}

// ExchangeDeleteOpts modify exchange.delete.
type ExchangeDeleteOpts struct {
	IfUnused bool
	NoWait   bool
}

func NewExchangeDeleteOpts() *ExchangeDeleteOpts {
	return &ExchangeDeleteOpts{IfUnused: true}
}

// BindOpts modify the queue and exchange bind/unbind operations. An
// empty RoutingKey falls back to the session routing key.
type BindOpts struct {
	RoutingKey string
	NoWait     bool
	Arguments  wire.Table
}

// ConsumeOpts modify basic.consume. An empty ConsumerTag is replaced by
// a generated one. NoAck set here turns the flag on for this consume
// only; when unset the session Config.NoAck value is sent.
type ConsumeOpts struct {
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   wire.Table
}

// PublishOpts modify basic.publish. Empty Exchange and RoutingKey fall
// back to the session values.
type PublishOpts struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
	Properties *wire.BasicProperties
}

// pickString is the explicit three-way option lookup.
func pickString(perCall, session, def string) string {
	if perCall != "" {
		return perCall
	}
	if session != "" {
		return session
	}
	return def
}
