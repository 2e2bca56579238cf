package utils

import "github.com/erikdubbelboer/gspt"

const procTitlePrefix = "remapd: "

// SetProcTitle shows the daemon state in ps output.
func SetProcTitle(status string) {
	gspt.SetProcTitle(procTitle(status))
}

func procTitle(status string) string {
	if status == "" {
		return "remapd"
	}
	return procTitlePrefix + status
}
