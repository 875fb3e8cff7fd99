package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ReadInfo describes the data-access side of one request: what was
// read, from where, at which tier.
type ReadInfo struct {
	Dataset    string        `json:"dataset"`
	Group      string        `json:"group,omitempty"`
	Variables  []string      `json:"variables,omitempty"`
	Expression string        `json:"expression,omitempty"`
	Scale      string        `json:"scale,omitempty"`
	Duration   time.Duration `json:"duration"`
	BandCount  int           `json:"band_count"`
}

// CacheInfo records the result-cache outcome of one request.
type CacheInfo struct {
	Key      string        `json:"key,omitempty"`
	Hit      bool          `json:"hit"`
	Duration time.Duration `json:"duration"`
}

// MetricsInfo is one logged record per read operation.
type MetricsInfo struct {
	ReqTime     string        `json:"req_time"`
	ReqDuration time.Duration `json:"req_duration"`
	Operation   string        `json:"operation"`
	TileX       int           `json:"tile_x,omitempty"`
	TileY       int           `json:"tile_y,omitempty"`
	TileZ       int           `json:"tile_z,omitempty"`
	Error       string        `json:"error,omitempty"`
	Read        *ReadInfo     `json:"read"`
	Cache       *CacheInfo    `json:"cache"`
}

// MetricsCollector accumulates one request's record and hands it to a
// logger when the request finishes.
type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			ReqTime: time.Now().Format(time.RFC3339),
			Read:    &ReadInfo{},
			Cache:   &CacheInfo{},
		},
		logger: logger,
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	i.normalise()

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(i); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (i *MetricsInfo) normalise() {
	i.Operation = strings.ToLower(strings.TrimSpace(i.Operation))
	if i.Read != nil && i.Read.BandCount == 0 && len(i.Read.Variables) > 0 {
		i.Read.BandCount = len(i.Read.Variables)
	}
}
