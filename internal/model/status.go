package model

// Placeholder is the display value used for any string field the remote
// worker leaves unset. The worker itself reports "-" for unset fields.
const Placeholder = "-"

// RunStatus is the payload of GET /api/status.
type RunStatus struct {
	OK          bool                   `json:"ok"`
	Error       string                 `json:"error,omitempty"`
	Running     bool                   `json:"running"`
	Stats       *Stats                 `json:"stats,omitempty"`
	ProxyScores map[string]ProxyCounts `json:"proxy_scores,omitempty"`
}

// Stats holds the aggregate counters of the current run.
// Every field is optional: nil means the worker did not report it.
// Total >= Success+Failed is expected but never checked.
type Stats struct {
	Total      *int64  `json:"total,omitempty"`
	Success    *int64  `json:"success,omitempty"`
	Failed     *int64  `json:"failed,omitempty"`
	LastStatus *string `json:"last_status,omitempty"`
	LastProxy  *string `json:"last_proxy,omitempty"`
	LastError  *string `json:"last_error,omitempty"`
	Uptime     *int64  `json:"uptime,omitempty"`
}

// ProxyCounts is the per-proxy success/failure tally reported by the worker.
type ProxyCounts struct {
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// Score returns success minus failed.
func (c ProxyCounts) Score() int64 {
	return c.Success - c.Failed
}

// IntOr returns *v, or def when v is nil.
func IntOr(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

// StringOr returns *v, or def when v is nil.
func StringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
