package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"quantumscan/port"
)

// jsonRecord is the export shape for one port.
type jsonRecord struct {
	TCPStates map[string]string `json:"tcp_states"`
	UDPState  string            `json:"udp_state"`
	Filtering string            `json:"filtering"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Vulns     []string          `json:"vulns"`
	CertInfo  *port.CertInfo    `json:"cert_info"`
	Banner    string            `json:"banner"`
	OSGuess   string            `json:"os_guess"`
}

// WriteJSON serializes the result mapping and writes it atomically.
func WriteJSON(results map[uint16]*port.PortResult, path string) error {
	out := make(map[string]jsonRecord, len(results))
	for p, r := range results {
		out[strconv.Itoa(int(p))] = jsonRecord{
			TCPStates: r.TCPStateStrings(),
			UDPState:  r.UDPState,
			Filtering: r.Filtering,
			Service:   r.Service,
			Version:   r.Version,
			Vulns:     r.Vulns,
			CertInfo:  r.Cert,
			Banner:    r.Banner,
			OSGuess:   r.OSGuess,
		}
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to path atomically:
//   - create temp file in same directory
//   - write bytes, fsync, close
//   - rename to final path (overwrite)
//
// On failure the temp file is removed and an error returned.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpF, err := os.CreateTemp(dir, "quantumscan-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpF.Name()

	cleanup := func() {
		_ = tmpF.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmpF.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp -> final: %w", err)
	}
	return nil
}
