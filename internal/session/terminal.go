package session

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// ResponseDelay is how long a terminal command takes to answer.
const ResponseDelay = 500 * time.Millisecond

// MaxCommandLength bounds a single terminal command.
const MaxCommandLength = 1024

var terminalHelp = []string{
	"Available commands:",
	"  help            show this help",
	"  clear           clear the terminal",
	"  ls              list files",
	"  pwd             print working directory",
	"  whoami          print current user",
	"  date            print device time",
	"  uname           print kernel information",
	"  getprop <key>   read a system property",
	"  echo <text>     print text",
}

// HelpLines returns the fixed response to the help command.
func HelpLines() []string {
	return append([]string(nil), terminalHelp...)
}

// terminalDevice is what the synthetic shell knows about the device.
type terminalDevice struct {
	id   string
	host string
}

func (d terminalDevice) props() map[string]string {
	return map[string]string{
		"ro.serialno":              d.id,
		"ro.product.manufacturer":  "Generic",
		"ro.product.model":         "Remote Device",
		"ro.build.version.release": "13",
		"ro.build.version.sdk":     "33",
		"net.hostname":             d.host,
	}
}

// terminalResponse computes the synthetic shell's answer to one command.
// clear reports that the log should be wiped instead of answered.
func terminalResponse(input string, dev terminalDevice, now time.Time) (lines []string, clear bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, false
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help":
		return HelpLines(), false
	case "clear":
		return nil, true
	case "ls":
		return []string{"acct  cache  config  data  dev  etc  proc  sdcard  storage  sys  system  vendor"}, false
	case "pwd":
		return []string{"/"}, false
	case "whoami":
		return []string{"shell"}, false
	case "date":
		return []string{now.UTC().Format(time.UnixDate)}, false
	case "uname":
		if len(args) > 0 && args[0] == "-a" {
			return []string{"Linux localhost 5.10.157-android13 #1 SMP PREEMPT aarch64 Toybox"}, false
		}
		return []string{"Linux"}, false
	case "getprop":
		props := dev.props()
		if len(args) == 0 {
			out := make([]string, 0, len(props))
			for _, k := range sortedKeys(props) {
				out = append(out, fmt.Sprintf("[%s]: [%s]", k, props[k]))
			}
			return out, false
		}
		return []string{props[args[0]]}, false
	case "echo":
		return []string{strings.Join(args, " ")}, false
	default:
		return []string{fmt.Sprintf("sh: %s: not found", cmd)}, false
	}
}

var terminalNoise = []string{
	"I/ActivityManager: Start proc com.android.systemui",
	"D/ConnectivityService: NetworkAgentInfo validated",
	"I/PowerManagerService: Waking up from sleep",
	"W/BatteryStatsService: Charging state changed",
	"I/WifiService: RSSI changed",
}

// terminalNoiseLine is unsolicited device output for the n-th tick.
func terminalNoiseLine(n uint64) string {
	return terminalNoise[int(n%uint64(len(terminalNoise)))]
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
