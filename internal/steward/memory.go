package steward

import (
	"encoding/json"
	"log/slog"
	"os"
)

const maxRecords = 50

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	Tick      uint64 `json:"tick"`
	Action    string `json:"action"`
	Area      int    `json:"area,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Level     string `json:"level,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// CycleMemory keeps a ring of recent cycle records on disk.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file. Returns empty memory if it is missing or
// unreadable. An empty path keeps memory in process only.
func LoadMemory(path string) *CycleMemory {
	mem := &CycleMemory{path: path}
	if path == "" {
		return mem
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mem
	}
	if err := json.Unmarshal(data, mem); err != nil {
		slog.Warn("steward memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	return mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal steward memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		slog.Error("failed to write steward memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// LastProvision returns the tick of the latest delivery to an area.
func (m *CycleMemory) LastProvision(area int) (uint64, bool) {
	for i := len(m.Records) - 1; i >= 0; i-- {
		r := m.Records[i]
		if r.Action == "provision" && r.Area == area {
			return r.Tick, true
		}
	}
	return 0, false
}
