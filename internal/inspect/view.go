package inspect

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/signalsfoundry/imc-missions/imc"
)

type viewer struct {
	title  string
	lines  []string
	top    int
	height int
}

type action int

const (
	actionNone action = iota
	actionQuit
)

func (v *viewer) page() int {
	if v.height > 2 {
		return v.height - 2
	}
	return 1
}

func (v *viewer) scroll(delta int) {
	v.top += delta
	if last := len(v.lines) - v.page(); v.top > last {
		v.top = last
	}
	if v.top < 0 {
		v.top = 0
	}
}

// handleKey applies one key press to the viewer state.
func (v *viewer) handleKey(key tcell.Key, r rune) action {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return actionQuit
	case tcell.KeyUp:
		v.scroll(-1)
	case tcell.KeyDown:
		v.scroll(1)
	case tcell.KeyPgUp:
		v.scroll(-v.page())
	case tcell.KeyPgDn:
		v.scroll(v.page())
	case tcell.KeyHome:
		v.top = 0
	case tcell.KeyEnd:
		v.scroll(len(v.lines))
	case tcell.KeyRune:
		switch r {
		case 'q', 'Q':
			return actionQuit
		case 'k':
			v.scroll(-1)
		case 'j':
			v.scroll(1)
		case ' ':
			v.scroll(v.page())
		}
	}
	return actionNone
}

func (v *viewer) render(screen tcell.Screen) {
	width, height := screen.Size()
	v.height = height
	screen.Clear()

	styleHeader := tcell.StyleDefault.Bold(true).Reverse(true)
	styleBody := tcell.StyleDefault
	styleHelp := tcell.StyleDefault.Foreground(tcell.ColorGray)

	drawText(screen, 0, 0, width, styleHeader, " "+v.title)
	for row := 1; row < height-1; row++ {
		i := v.top + row - 1
		if i >= len(v.lines) {
			break
		}
		drawText(screen, 0, row, width, styleBody, v.lines[i])
	}
	help := fmt.Sprintf(" %d-%d of %d  [Up/Down/PgUp/PgDn]=Scroll  [q/Esc]=Quit ",
		min(v.top+1, len(v.lines)), min(v.top+v.page(), len(v.lines)), len(v.lines))
	drawText(screen, 0, height-1, width, styleHelp, help)
}

// drawText draws a string at the given position, padding to maxWidth.
func drawText(screen tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	col := 0
	for _, r := range text {
		if col >= maxWidth {
			break
		}
		screen.SetContent(x+col, y, r, nil, style)
		col++
	}
	for col < maxWidth {
		screen.SetContent(x+col, y, ' ', nil, style)
		col++
	}
}

// View shows msg as a scrollable tree on screen until the user quits. The
// screen must already be initialised; the caller owns Fini.
func View(screen tcell.Screen, msg imc.Message) {
	v := &viewer{lines: Tree(msg)}
	if msg != nil {
		v.title = msg.Abbrev()
	}
	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))

	for {
		v.render(screen)
		screen.Show()

		switch ev := screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			if v.handleKey(ev.Key(), ev.Rune()) == actionQuit {
				return
			}
		}
	}
}

// ViewTerminal opens the controlling terminal and runs View on it.
func ViewTerminal(msg imc.Message) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initialise screen: %w", err)
	}
	defer screen.Fini()
	View(screen, msg)
	return nil
}
