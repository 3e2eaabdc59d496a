package console

import "github.com/fatih/color"

type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	muted   *color.Color
}

func newColorScheme(enabled bool) *colorScheme {
	s := &colorScheme{
		success: color.New(color.FgGreen, color.Bold),
		fail:    color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow),
		muted:   color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{s.success, s.fail, s.warn, s.muted} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}
