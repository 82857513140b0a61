package tcp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Console is the operator's line-oriented view of a running relay
type Console struct {
	manager *ConnectionManager
	in      io.Reader
	out     io.Writer
	prompt  bool
}

func NewConsole(manager *ConnectionManager, in io.Reader, out io.Writer) *Console {
	return &Console{manager: manager, in: in, out: out, prompt: true}
}

// WithoutPrompt disables the "Please enter command" prompt (for piped input)
func (c *Console) WithoutPrompt() *Console {
	c.prompt = false
	return c
}

// Run reads commands until "exit" or until done is closed, both of which
// return nil. Running out of input is not an exit request: Run returns io.EOF
// (or the read error) and leaves the decision to the caller.
// It blocks on the reader; done is only observed between lines.
func (c *Console) Run(done <-chan struct{}) error {
	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if c.prompt {
			fmt.Fprint(c.out, "Please enter command: ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("console input: %w", err)
			}
			return io.EOF
		}
		if !c.Execute(scanner.Text()) {
			return nil
		}
	}
}

// Execute runs one command line and reports whether the console should keep going
func (c *Console) Execute(line string) bool {
	switch strings.TrimSpace(line) {
	case "msg":
		fmt.Fprintf(c.out, "Last message: %s\n", c.manager.LastMessage())
	case "clients":
		clients := c.manager.List()
		fmt.Fprintf(c.out, "Number of Clients: %d\n", len(clients))
		for _, info := range clients {
			fmt.Fprintf(c.out, "IP Address: %s | Port: %d\n", info.IP, info.Port)
		}
	case "exit":
		return false
	case "help":
		fmt.Fprintln(c.out, "Commands: msg | clients | exit")
	case "":
	default:
		fmt.Fprintf(c.out, "Unknown command %q, type help for a list\n", strings.TrimSpace(line))
	}
	return true
}
