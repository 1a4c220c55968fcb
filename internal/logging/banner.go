package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/mdp/qrterminal/v3"
)

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	dim    = "\033[2m"
)

// Base CodeHive ASCII art.
var logoLines = [6]string{
	`   ____          _      _   _ _           `,
	`  / ___|___   __| | ___| | | (_)_   _____ `,
	` | |   / _ \ / _` + "`" + ` |/ _ \ |_| | \ \ / / _ \`,
	` | |__| (_) | (_| |  __/  _  | |\ V /  __/`,
	`  \____\___/ \__,_|\___|_| |_|_| \_/ \___|`,
	`                                          `,
}

// Mode-specific ASCII art (right-side, same height as logo).
var relayArt = [6]string{
	`  ____      _             `,
	` |  _ \ ___| | __ _ _   _ `,
	` | |_) / _ \ |/ _` + "`" + ` | | | |`,
	` |  _ <  __/ | (_| | |_| |`,
	` |_| \_\___|_|\__,_|\__, |`,
	`                    |___/ `,
}

var agentArt = [6]string{
	`     _                    _   `,
	`    / \   __ _  ___ _ __ | |_ `,
	`   / _ \ / _` + "`" + ` |/ _ \ '_ \| __|`,
	`  / ___ \ (_| |  __/ | | | |_ `,
	` /_/   \_\__, |\___|_| |_|\__|`,
	`         |___/                `,
}

func stderrIsTTY() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// PrintBanner prints the CodeHive ASCII art logo with mode-specific
// art appended to the right. Below the art it prints version and
// address. Colors are used only when stderr is a TTY.
func PrintBanner(mode, ver, addr string) {
	color := stderrIsTTY()

	var modeArt *[6]string
	var modeColor string
	switch mode {
	case "relay":
		modeArt = &relayArt
		modeColor = green
	default: // agent
		modeArt = &agentArt
		modeColor = yellow
	}

	for i := 0; i < 6; i++ {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s%s%s%s\n",
				bold+cyan, logoLines[i], reset,
				bold+modeColor, modeArt[i], reset)
		} else {
			fmt.Fprintf(os.Stderr, "%s%s\n", logoLines[i], modeArt[i])
		}
	}

	// Info line below the art.
	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %saddr%s %s\n\n",
			dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   addr %s\n\n", ver, addr)
	}
}

// PrintInviteLink prints a room invite URI, plus a scannable QR code
// when stderr is a TTY.
func PrintInviteLink(uri string) {
	if stderrIsTTY() {
		fmt.Fprintf(os.Stderr, "\n  %sinvite%s %s%s%s\n\n", dim, reset, bold, uri, reset)
		qrterminal.GenerateWithConfig(uri, qrterminal.Config{
			Level:     qrterminal.L,
			Writer:    os.Stderr,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
			QuietZone: 1,
		})
		fmt.Fprintln(os.Stderr)
		return
	}
	fmt.Fprintf(os.Stderr, "invite %s\n", uri)
}
