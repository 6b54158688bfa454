package monitor

import "fmt"

// KeyMap defines the keyboard shortcuts displayed in the footer.
type KeyMap struct {
	Start   string
	Stop    string
	Refresh string
	Top     string
	Bottom  string
	Quit    string
	Help    string
}

// DefaultKeyMap returns the default shortcut mapping.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start:   "s",
		Stop:    "x",
		Refresh: "r",
		Top:     "g",
		Bottom:  "G",
		Quit:    "q",
		Help:    "?",
	}
}

// HelpLine renders the footer help text.
func (k KeyMap) HelpLine() string {
	return fmt.Sprintf("[%s] start  [%s] stop  [%s] refresh  [↑/↓] scroll logs  [%s] quit  [%s] help",
		k.Start, k.Stop, k.Refresh, k.Quit, k.Help)
}
