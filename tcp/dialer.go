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

TCP and TLS transport establishment for broker connections. The returned
conn applies a rolling deadline to every read and write so a wedged peer
surfaces as a timeout instead of a hung goroutine.

*/
package tcp

import (
	"crypto/tls"
	"net"
	"time"
)

// TimeoutConn wraps a net.Conn, resetting the read or write deadline
// before each operation.
type TimeoutConn struct {
	conn    net.Conn
	timeout time.Duration
}

func NewTimeoutConn(conn net.Conn, timeout time.Duration) *TimeoutConn {
	return &TimeoutConn{
		conn:    conn,
		timeout: timeout,
	}
}

func (c *TimeoutConn) Read(b []byte) (n int, err error) {
	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	return c.conn.Read(b)
}

func (c *TimeoutConn) Write(b []byte) (n int, err error) {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.Write(b)
}

func (c *TimeoutConn) Close() error {
	return c.conn.Close()
}

func (c *TimeoutConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *TimeoutConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *TimeoutConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *TimeoutConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *TimeoutConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Dial establishes a TCP connection to addr within connectTimeout,
// optionally wrapping it in a TLS client session, and returns a conn
// whose reads and writes are bounded by readTimeout.
//
// When useTls is set and the TlsConfig names no ServerName, the host
// portion of addr is used for certificate validation.
func Dial(addr string, useTls bool, tlsConf *TlsConfig, connectTimeout,
	readTimeout time.Duration) (net.Conn, error) {

	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, err
	}

	if useTls {
		var goConf *tls.Config
		if tlsConf != nil {
			if goConf, err = CreateGoTlsConfig(tlsConf); err != nil {
				conn.Close()
				return nil, err
			}
		} else {
			goConf = new(tls.Config)
		}
		if goConf.ServerName == "" {
			host, _, err := net.SplitHostPort(addr)
			if err == nil {
				goConf.ServerName = host
			}
		}

		client := tls.Client(conn, goConf)
		// Handshaking hasn't negotiated heartbeats yet, don't stall
		// forever on a dead server.
		client.SetDeadline(time.Now().Add(connectTimeout))
		if err = client.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		client.SetDeadline(time.Time{})
		conn = client
	}

	return NewTimeoutConn(conn, readTimeout), nil
}
