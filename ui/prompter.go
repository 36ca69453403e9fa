package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mkrall/spherecal/domain/calib"
)

// ConsolePrompter implements calib.Prompter over a terminal. Prompts
// block the session goroutine, matching the workflow's stop-and-decide
// stages.
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: bufio.NewReader(in), out: out}
}

// KeepExisting asks whether persisted data should be reused. Bare Enter
// and y/Y both mean keep, n/N means redo, and anything else warns and
// asks again. One extra input token is consumed after every answer.
func (p *ConsolePrompter) KeepExisting(what string) bool {
	for {
		fmt.Fprintf(p.out, "Use the existing %s? ([y]/n): ", what)
		first, _, err := p.in.ReadRune()
		if err != nil {
			return false
		}
		switch first {
		case '\n', 'y', 'Y':
			p.in.ReadRune()
			return true
		case 'n', 'N':
			p.in.ReadRune()
			return false
		}
		p.in.ReadRune()
		fmt.Fprintln(p.out, "Invalid input!")
	}
}

// SelectMethod shows the transform-method menu. An empty line selects
// the first entry; unrecognized input re-prompts.
func (p *ConsolePrompter) SelectMethod() calib.Method {
	for {
		fmt.Fprint(p.out, "Select the transform method:\n"+
			"  1) corners of a square on the XY plane\n"+
			"  2) corners of a square on the YZ plane\n"+
			"  3) corners of a square on the XZ plane\n"+
			"  4) transform supplied externally\n"+
			"Choice [1]: ")
		line, err := p.in.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "", "1":
			return calib.MethodSquareXY
		case "2":
			return calib.MethodSquareYZ
		case "3":
			return calib.MethodSquareXZ
		case "4":
			return calib.MethodExternal
		}
		if err != nil {
			return calib.MethodSquareXY
		}
		fmt.Fprintln(p.out, "Unrecognised choice.")
	}
}

// Instruct prints what the user should do in the stage being entered.
func (p *ConsolePrompter) Instruct(st calib.Stage) {
	switch st {
	case calib.StageCircumferencePoints:
		fmt.Fprintln(p.out, "Left-click points on the sphere's circumference (3 or more)."+
			" Right-click removes the last point. Press Enter to accept, Esc to quit.")
	case calib.StageIgnorePoints:
		fmt.Fprintln(p.out, "Left-click corners of regions to ignore."+
			" Press Enter to close a region, Enter again to finish, Esc to quit.")
	case calib.StageSquareXY, calib.StageSquareYZ, calib.StageSquareXZ:
		fmt.Fprintf(p.out, "Left-click the 4 corners of the %s reference square in order."+
			" Press f to flip the pose if the axes look mirrored, Enter to accept.\n",
			strings.TrimPrefix(st.String(), "square_corners_"))
	case calib.StageExternal:
		fmt.Fprintln(p.out, "Using an externally supplied transform.")
	}
}
