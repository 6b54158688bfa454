package monitor

import "time"

const (
	defaultRefreshInterval = time.Second
	scoreboardMaxRows      = 8
	minLogPaneHeight       = 3
	proxyColumnMinWidth    = 12
)
