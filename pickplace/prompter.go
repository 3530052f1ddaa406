package pickplace

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Prompter gates the pipeline on operator confirmation.
type Prompter interface {
	Confirm(ctx context.Context, message string) error
}

// AutoConfirm confirms every prompt immediately.
type AutoConfirm struct{}

// Confirm returns nil.
func (AutoConfirm) Confirm(ctx context.Context, message string) error {
	return ctx.Err()
}

// StdinPrompter writes a message and waits for a line on its input.
type StdinPrompter struct {
	out   io.Writer
	lines chan error
}

// NewStdinPrompter reads confirmations from in and writes prompts to out.
func NewStdinPrompter(in io.Reader, out io.Writer) *StdinPrompter {
	p := &StdinPrompter{out: out, lines: make(chan error)}
	goutils.PanicCapturingGo(func() {
		reader := bufio.NewReader(in)
		for {
			_, err := reader.ReadString('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = errors.New("input closed before confirmation")
				}
				p.lines <- err
				close(p.lines)
				return
			}
			p.lines <- nil
		}
	})
	return p
}

// Confirm prints message and blocks until a line is read or ctx is done.
func (p *StdinPrompter) Confirm(ctx context.Context, message string) error {
	if _, err := fmt.Fprintf(p.out, "%s. Press enter to continue\n", message); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-p.lines:
		if !ok {
			return errors.New("input closed before confirmation")
		}
		return err
	}
}
