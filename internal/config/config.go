// Package config loads the server's key=value text configuration file.
//
// No library in the project's dependency surface targets this exact tiny
// grammar (a couple of scalar keys and one indexed-by-serial family), so
// this package is implemented directly against the standard library; see
// DESIGN.md for the justification.
package config

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/allsmog/secure-range-proof/internal/curve"
	"github.com/allsmog/secure-range-proof/internal/registry"
)

const clientKeyPrefix = "client."
const clientKeySuffix = ".pubkey_hex"

// Warning describes one malformed line that was logged and skipped rather
// than treated as a fatal load error.
type Warning struct {
	Line    int
	Content string
	Reason  string
}

// Config is the parsed result of a server.conf file.
type Config struct {
	ServerKeys registry.ServerKeys
	Clients    *registry.ClientRegistry
	Warnings   []Warning
}

// demoServerPrivHex, together with the demo client identity below, backs
// the fallback configuration used when the config file is missing,
// matching spec.md's documented demo defaults.
var demoServerPrivHex = strings.Repeat("11", 32)

// DemoClientSerial and DemoClientPrivHex are the well-known demo client
// identity used when no config file is present, so a fresh checkout has a
// runnable end-to-end example without any setup.
const (
	DemoClientSerial  = "DEMO-SERIAL-0001"
	DemoClientPrivHex = "2222222222222222222222222222222222222222222222222222222222222222"
)

// Load reads and parses the key=value configuration file at path. If path
// does not exist, Load returns the demo default configuration instead of
// an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return demoConfig()
		}
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the key=value grammar from r: blank lines and lines whose
// first non-whitespace character is '#' are ignored, everything else must
// be `key=value`. Malformed lines and unrecognized/invalid values are
// recorded as Warnings and skipped rather than failing the load.
func Parse(r io.Reader) (Config, error) {
	var cfg Config
	var havePriv bool
	var priv [32]byte
	clients := make(map[string]curve.Point33)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			cfg.Warnings = append(cfg.Warnings, Warning{Line: lineNo, Content: line, Reason: "missing '='"})
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "server_privkey_hex":
			b, err := decodeFixedHex(value, 32)
			if err != nil {
				cfg.Warnings = append(cfg.Warnings, Warning{Line: lineNo, Content: line, Reason: err.Error()})
				continue
			}
			copy(priv[:], b)
			havePriv = true

		case strings.HasPrefix(key, clientKeyPrefix) && strings.HasSuffix(key, clientKeySuffix):
			serial := strings.TrimSuffix(strings.TrimPrefix(key, clientKeyPrefix), clientKeySuffix)
			if serial == "" {
				cfg.Warnings = append(cfg.Warnings, Warning{Line: lineNo, Content: line, Reason: "empty client serial"})
				continue
			}
			b, err := decodeFixedHex(value, 33)
			if err != nil {
				cfg.Warnings = append(cfg.Warnings, Warning{Line: lineNo, Content: line, Reason: err.Error()})
				continue
			}
			var pub curve.Point33
			copy(pub[:], b)
			if _, err := curve.Decode(pub); err != nil {
				cfg.Warnings = append(cfg.Warnings, Warning{Line: lineNo, Content: line, Reason: fmt.Sprintf("invalid point: %v", err)})
				continue
			}
			clients[serial] = pub

		default:
			cfg.Warnings = append(cfg.Warnings, Warning{Line: lineNo, Content: line, Reason: "unrecognized key"})
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}

	if !havePriv {
		def, err := demoConfig()
		if err != nil {
			return Config{}, err
		}
		copy(priv[:], def.ServerKeys.Priv[:])
		havePriv = true
	}

	keys, err := registry.NewServerKeys(priv)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.ServerKeys = keys
	cfg.Clients = registry.NewClientRegistry(clients)
	return cfg, nil
}

func decodeFixedHex(s string, wantBytes int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != wantBytes {
		return nil, fmt.Errorf("expected %d hex bytes, got %d", wantBytes, len(b))
	}
	return b, nil
}

func demoConfig() (Config, error) {
	privBytes, err := hex.DecodeString(demoServerPrivHex)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode demo privkey: %w", err)
	}
	var priv [32]byte
	copy(priv[:], privBytes)
	keys, err := registry.NewServerKeys(priv)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	clientPrivBytes, err := hex.DecodeString(DemoClientPrivHex)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode demo client privkey: %w", err)
	}
	clientPub, err := curve.PubkeyFromPriv(clientPrivBytes)
	if err != nil {
		return Config{}, fmt.Errorf("config: derive demo client pubkey: %w", err)
	}

	return Config{
		ServerKeys: keys,
		Clients:    registry.NewClientRegistry(map[string]curve.Point33{DemoClientSerial: clientPub}),
	}, nil
}
