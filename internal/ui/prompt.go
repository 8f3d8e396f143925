package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks yes/no questions on a line-oriented input. A single reader
// goroutine owns the input, so a question abandoned by a cancelled context
// does not leave a stray read behind to swallow the next answer.
type Prompter struct {
	out   io.Writer
	in    io.Reader
	once  sync.Once
	lines chan string
	mu    sync.Mutex
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out, lines: make(chan string)}
}

func (p *Prompter) start() {
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
}

// Confirm prints question and waits for an answer. Anything other than
// y or yes counts as no. It returns ctx's error if ctx ends first and
// io.EOF once the input is exhausted.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.once.Do(p.start)

	// One question at a time.
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s %s %s ", IconPeer, question, MutedStyle.Render("[y/N]"))

	select {
	case line, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(p.out)
			return false, io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	}
}
