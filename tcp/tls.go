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
#   Rob Miller (rmiller@mozilla.com)
#
# ***** END LICENSE BLOCK *****/

package tcp

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

var ciphers = map[string]uint16{
	"RSA_WITH_AES_128_CBC_SHA":                tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	"RSA_WITH_AES_256_CBC_SHA":                tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	"ECDHE_ECDSA_WITH_AES_128_CBC_SHA":        tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	"ECDHE_ECDSA_WITH_AES_256_CBC_SHA":        tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	"ECDHE_RSA_WITH_AES_128_CBC_SHA":          tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	"ECDHE_RSA_WITH_AES_256_CBC_SHA":          tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	"ECDHE_RSA_WITH_AES_128_GCM_SHA256":       tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"ECDHE_ECDSA_WITH_AES_128_GCM_SHA256":     tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"ECDHE_RSA_WITH_AES_256_GCM_SHA384":       tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"ECDHE_ECDSA_WITH_AES_256_GCM_SHA384":     tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256": tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

var tlsVersions = map[string]uint16{
	"TLS10": tls.VersionTLS10,
	"TLS11": tls.VersionTLS11,
	"TLS12": tls.VersionTLS12,
	"TLS13": tls.VersionTLS13,
}

// TlsConfig is the declarative client side TLS configuration, suitable
// for decoding from a toml config section.
type TlsConfig struct {
	ServerName         string `toml:"server_name"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	RootCAs            string `toml:"root_cafile"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	MinVersion         string `toml:"min_version"`
	MaxVersion         string `toml:"max_version"`
	Ciphers            []string
}

// CreateGoTlsConfig translates a TlsConfig into a crypto/tls client
// config, validating version and cipher names.
func CreateGoTlsConfig(tomlConf *TlsConfig) (goConf *tls.Config, err error) {
	goConf = new(tls.Config)

	if tomlConf.CertFile != "" && tomlConf.KeyFile != "" {
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(tomlConf.CertFile, tomlConf.KeyFile)
		if err != nil {
			return
		}
		goConf.Certificates = []tls.Certificate{cert}
	}
	goConf.ServerName = tomlConf.ServerName

	var ok bool
	if tomlConf.MinVersion != "" {
		goConf.MinVersion, ok = tlsVersions[tomlConf.MinVersion]
		if !ok {
			return nil, fmt.Errorf("Invalid MinVersion: %s", tomlConf.MinVersion)
		}
	}
	if tomlConf.MaxVersion != "" {
		goConf.MaxVersion, ok = tlsVersions[tomlConf.MaxVersion]
		if !ok {
			return nil, fmt.Errorf("Invalid MaxVersion: %s", tomlConf.MaxVersion)
		}
	}
	if goConf.MaxVersion > 0 && goConf.MaxVersion < goConf.MinVersion {
		return nil, fmt.Errorf("MaxVersion (%s) must be newer than MinVersion (%s)",
			tomlConf.MaxVersion, tomlConf.MinVersion)
	}

	if tomlConf.RootCAs != "" {
		if goConf.RootCAs, err = certPoolFromFile(tomlConf.RootCAs); err != nil {
			return nil, err
		}
	}

	goConf.InsecureSkipVerify = tomlConf.InsecureSkipVerify

	var cipher uint16
	for _, cipherStr := range tomlConf.Ciphers {
		if cipher, ok = ciphers[cipherStr]; !ok {
			return nil, fmt.Errorf("Invalid cipher string: %s", cipherStr)
		}
		goConf.CipherSuites = append(goConf.CipherSuites, cipher)
	}
	return
}

func certPoolFromFile(pemfile string) (*x509.CertPool, error) {
	roots := x509.NewCertPool()
	data, err := os.ReadFile(pemfile)
	if err != nil {
		return nil, err
	}
	if roots.AppendCertsFromPEM(data) {
		return roots, nil
	}
	return nil, fmt.Errorf("No PEM encoded certificates found in: %s", pemfile)
}
