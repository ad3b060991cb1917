// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/bassosimone/syslisten"
	"github.com/magiconair/properties"
)

// defaultConfigName is the properties file we look for.
const defaultConfigName = "syslog-server.properties"

// Property keys.
const (
	keySocketType  = "syslog.socketType"
	keyAddress     = "syslog.address"
	keyPort        = "syslog.port"
	keyPrivateKey  = "syslog.tls.privateKey"
	keyCertificate = "syslog.tls.certificate"
	keyCA          = "syslog.tls.ca"
	keyLogFile     = "log.file"
	keyLogLevel    = "log.level"
)

// settings contains the operator configuration before validation.
type settings struct {
	SocketType  string
	Address     string
	Port        string
	PrivateKey  string
	Certificate string
	CA          string
	LogFile     string
	LogLevel    string
}

// defaultSettings returns the settings used for keys that are not set.
func defaultSettings() settings {
	return settings{
		Address:  "0.0.0.0",
		Port:     "514",
		LogFile:  "syslog-server.log",
		LogLevel: "info",
	}
}

// findConfigFile returns the properties file to load, or an empty string
// when there is none. An explicit path must exist.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName, nil
	}
	path, err := xdg.SearchConfigFile(filepath.Join("syslisten", defaultConfigName))
	if err != nil {
		// not finding the file is not an error
		return "", nil
	}
	return path, nil
}

// loadSettings overlays the properties file at path, if any, onto the defaults.
func loadSettings(path string) (settings, error) {
	s := defaultSettings()
	if path == "" {
		return s, nil
	}
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return s, err
	}
	s.SocketType = props.GetString(keySocketType, s.SocketType)
	s.Address = props.GetString(keyAddress, s.Address)
	s.Port = props.GetString(keyPort, s.Port)
	s.PrivateKey = props.GetString(keyPrivateKey, s.PrivateKey)
	s.Certificate = props.GetString(keyCertificate, s.Certificate)
	s.CA = props.GetString(keyCA, s.CA)
	s.LogFile = props.GetString(keyLogFile, s.LogFile)
	s.LogLevel = props.GetString(keyLogLevel, s.LogLevel)
	return s, nil
}

// errInvalidPort indicates a port outside 0..65535.
var errInvalidPort = errors.New("invalid port")

// listenerConfig resolves the settings into a [syslisten.ListenerConfig].
func (s settings) listenerConfig() (syslisten.ListenerConfig, error) {
	kind, err := syslisten.ParseTransportKind(s.SocketType)
	if err != nil {
		return syslisten.ListenerConfig{}, err
	}

	port, err := strconv.ParseUint(s.Port, 10, 16)
	if err != nil {
		return syslisten.ListenerConfig{}, fmt.Errorf("%w: %q", errInvalidPort, s.Port)
	}

	lc := syslisten.ListenerConfig{Kind: kind, Host: s.Address, Port: uint16(port)}
	if kind == syslisten.TransportEncryptedStream {
		lc.TLS = &syslisten.TLSMaterial{
			PrivateKeyPath:  s.PrivateKey,
			CertificatePath: s.Certificate,
			CAPath:          s.CA,
		}
	}
	return lc, lc.Validate()
}
