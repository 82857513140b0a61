package command

// root.go defines the root command for the relayCLI application.

import (
	"fmt"
	"net"
	"os"
	"relayhub/cmd/cli/command/client"
	"strconv"

	"github.com/spf13/cobra"
)

// rootCmd connects to a relay and runs the interactive command loop
var rootCmd = &cobra.Command{
	Use:   "relayCLI <server_ip> <port>",
	Short: "relayCLI - TCP message relay client",
	Long: `relayCLI connects to a relay server and prints every record it receives
while reading commands from standard input:

  v <n>         set the version tag for subsequent messages
  t <n> <text>  send a message of type n carrying text
  q             quit

The server relays type 77 to every other client and answers type 201
with the text reversed. It only acts on version 102.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := serverAddress(args[0], args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tcpClient := client.NewTCPClient(addr, out)
		if err := tcpClient.Connect(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Connected to server %s\n", args[0])

		tcpClient.StartReceiving()
		runCommandLoop(tcpClient, cmd.InOrStdin(), out, tcpClient.Done())
		return tcpClient.Close()
	},
}

// serverAddress validates the port and joins it with host, bracketing IPv6 literals
func serverAddress(host, port string) (string, error) {
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", port, err)
	}
	return net.JoinHostPort(host, strconv.FormatUint(n, 10)), nil
}

// Execute runs the root command and exits non-zero on any error.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Usage:", rootCmd.Use)
		os.Exit(1)
	}
}
