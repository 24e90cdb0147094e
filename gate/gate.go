// Package gate asks the operator to confirm destructive or long-running steps.
package gate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var ErrAborted = errors.New("aborted by operator")

// Confirmer is what build steps depend on.
type Confirmer interface {
	Confirm(statements ...string) error
	IsInteractive() bool
}

var (
	colArrow = color.New(color.FgYellow, color.Bold)
	colNote  = color.New(color.FgCyan)
	colWarn  = color.New(color.FgRed)
)

// Gate prints the statements and, when Interactive, blocks for a [Y/n] answer.
type Gate struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool

	mu     sync.Mutex
	reader *bufio.Reader
}

// New returns a gate bound to stdin/stdout.
func New(interactive bool) *Gate {
	return &Gate{In: os.Stdin, Out: os.Stdout, Interactive: interactive}
}

func (g *Gate) IsInteractive() bool {
	return g.Interactive
}

func (g *Gate) Confirm(statements ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.Out
	if out == nil {
		out = os.Stdout
	}
	for _, s := range statements {
		colArrow.Fprint(out, "-> ")
		colNote.Fprintln(out, s)
	}
	if !g.Interactive {
		return nil
	}

	if g.reader == nil {
		in := g.In
		if in == nil {
			in = os.Stdin
		}
		g.reader = bufio.NewReader(in)
	}
	for {
		fmt.Fprint(out, "Proceed? [Y/n]: ")
		response, err := g.reader.ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if err != nil && response == "" {
			// EOF (Ctrl+D) counts as no.
			fmt.Fprintln(out)
			return ErrAborted
		}
		switch response {
		case "", "y", "yes":
			return nil
		case "n", "no":
			return ErrAborted
		}
		colWarn.Fprintln(out, "Invalid input.")
		if err != nil {
			return ErrAborted
		}
	}
}

// Detect reports whether prompts may block on the operator. The flag,
// KU_NON_INTERACTIVE, a truthy CI variable or a non-terminal stdin all switch
// prompting off.
func Detect(nonInteractive bool) bool {
	if nonInteractive {
		return false
	}
	if truthy(os.Getenv("KU_NON_INTERACTIVE")) || truthy(os.Getenv("CI")) {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
