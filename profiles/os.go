package profiles

import (
	"fmt"
	"strings"
)

// OS is the operating system a profile claims to run on. It only affects
// the default headers: user-agent, sec-ch-ua-platform and sec-ch-ua-mobile.
type OS uint8

// Supported operating systems. The zero value selects the profile default.
const (
	Windows OS = iota + 1
	MacOS
	Linux
	Android
	IOS
)

func (o OS) String() string {
	switch o {
	case Windows:
		return "windows"
	case MacOS:
		return "macos"
	case Linux:
		return "linux"
	case Android:
		return "android"
	case IOS:
		return "ios"
	default:
		return "default"
	}
}

// Mobile reports whether o is a phone operating system.
func (o OS) Mobile() bool {
	return o == Android || o == IOS
}

// platform is the sec-ch-ua-platform value.
func (o OS) platform() string {
	switch o {
	case MacOS:
		return `"macOS"`
	case Linux:
		return `"Linux"`
	case Android:
		return `"Android"`
	case IOS:
		return `"iOS"`
	default:
		return `"Windows"`
	}
}

// mobileHint is the sec-ch-ua-mobile value.
func (o OS) mobileHint() string {
	if o.Mobile() {
		return "?1"
	}
	return "?0"
}

// ParseOS maps a configuration string to an OS. Empty selects the
// profile default.
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "windows", "win":
		return Windows, nil
	case "macos", "mac", "darwin", "osx":
		return MacOS, nil
	case "linux":
		return Linux, nil
	case "android":
		return Android, nil
	case "ios", "iphone":
		return IOS, nil
	default:
		return 0, fmt.Errorf("profiles: unknown operating system %q", s)
	}
}
