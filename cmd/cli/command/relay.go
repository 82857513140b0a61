package command

// relay.go = operator command parsing and the foreground command loop.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"relayhub/cmd/cli/command/client"
	"strconv"
	"strings"
)

type CommandKind int

const (
	CmdSetVersion CommandKind = iota + 1
	CmdSend
	CmdQuit
)

// Command is one parsed operator line
type Command struct {
	Kind    CommandKind
	Version uint8  // CmdSetVersion
	Type    uint8  // CmdSend
	Text    string // CmdSend
}

var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand understands "v <n>", "t <n> <text>" and "q".
// Everything after the space following the type is the text, spaces included.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "q":
		return Command{Kind: CmdQuit}, nil

	case strings.HasPrefix(line, "v "):
		n, err := parseByte(strings.TrimSpace(line[2:]))
		if err != nil {
			return Command{}, fmt.Errorf("invalid version: %w", err)
		}
		return Command{Kind: CmdSetVersion, Version: n}, nil

	case strings.HasPrefix(line, "t "):
		rest := line[2:]
		typeStr, text, found := strings.Cut(rest, " ")
		if !found {
			return Command{}, fmt.Errorf("usage: t <type> <text>")
		}
		n, err := parseByte(typeStr)
		if err != nil {
			return Command{}, fmt.Errorf("invalid type: %w", err)
		}
		return Command{Kind: CmdSend, Type: n, Text: text}, nil
	}
	return Command{}, fmt.Errorf("%w %q", ErrUnknownCommand, line)
}

func parseByte(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}

// readLines scans in on its own goroutine. Once stop is closed the goroutine
// stops handing off lines and exits after its current read returns.
func readLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

// sender is the part of the client the command loop drives
type sender interface {
	SetVersion(version uint8)
	Send(msgType uint8, text string) error
}

var _ sender = (*client.TCPClient)(nil)

// runCommandLoop reads operator lines until "q", end of input, or serverGone
// is closed. Input is read on its own goroutine so a dropped connection ends
// the loop without waiting for another line.
func runCommandLoop(c sender, in io.Reader, out io.Writer, serverGone <-chan struct{}) {
	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(in, stop)

	for {
		fmt.Fprint(out, "Please enter command: ")
		var line string
		var ok bool
		select {
		case <-serverGone:
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		switch cmd.Kind {
		case CmdQuit:
			return
		case CmdSetVersion:
			c.SetVersion(cmd.Version)
		case CmdSend:
			if err := c.Send(cmd.Type, cmd.Text); err != nil {
				fmt.Fprintf(out, "Failed to send message: %v\n", err)
			}
		}
	}
}
