// Package system collects the read-only machine facts passed into a plan's
// setup function: architecture, operating system, the invoking user, and
// hostname.
package system

import (
	"os"
	"os/user"
	"runtime"
)

// User is the invoking user's identity.
type User struct {
	Name string `json:"name"`
	Home string `json:"home"`
}

// System is the read-only record described by section 6: { arch, os,
// user { name, home }, hostname }. It never changes during an apply.
type System struct {
	Arch     string `json:"arch"`
	OS       string `json:"os"`
	User     User   `json:"user"`
	Hostname string `json:"hostname"`
}

// Collect reads the current machine's facts. It performs I/O (user lookup,
// hostname) and is called exactly once per apply, before setup runs.
func Collect() (System, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	u, err := user.Current()
	if err != nil {
		return System{}, err
	}

	return System{
		Arch: runtime.GOARCH,
		OS:   runtime.GOOS,
		User: User{
			Name: u.Username,
			Home: u.HomeDir,
		},
		Hostname: hostname,
	}, nil
}

// AsMap projects System into the plain map shape setup() receives as its
// second Starlark argument.
func (s System) AsMap() map[string]any {
	return map[string]any{
		"arch": s.Arch,
		"os":   s.OS,
		"user": map[string]any{
			"name": s.User.Name,
			"home": s.User.Home,
		},
		"hostname": s.Hostname,
	}
}
