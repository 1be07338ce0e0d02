package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jsphweid/smartpiano/challenge"
	"github.com/jsphweid/smartpiano/constants"
	"github.com/jsphweid/smartpiano/protocol"
	"github.com/jsphweid/smartpiano/transport"
	"github.com/jsphweid/smartpiano/util"
	"github.com/spf13/cobra"
)

var (
	playSocket string
	playScale  string
	playMode   string
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringVar(&playSocket, "socket", constants.GetSocketPath(), "unix socket of a running server")
	playCmd.Flags().StringVar(&playScale, "scale", constants.DefaultScale, "scale letter, a to g")
	playCmd.Flags().StringVar(&playMode, "mode", constants.DefaultMode, "maj or min")
}

var playCmd = &cobra.Command{
	Use:   "play <note|chord|inversed>",
	Short: "Plays a game from the terminal",
	Long: `Connects to a running server, configures a game and prints every message
it sends. Type ready (or just press enter) to go on, quit to give up and
exit to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !challenge.KnownScale(playScale, playMode) {
			return fmt.Errorf("unknown scale %s %s", playScale, playMode)
		}
		c, err := transport.Dial(cmd.Context(), playSocket)
		if err != nil {
			return err
		}
		defer c.Close()

		go printMessages(c, os.Stdout)

		err = c.Send(protocol.New(protocol.TypeConfig).
			With(protocol.FieldGame, args[0]).
			With(protocol.FieldScale, playScale).
			With(protocol.FieldMode, playMode))
		if err != nil {
			return err
		}
		return forwardInput(c, os.Stdin)
	},
}

func printMessages(c *transport.Client, w io.Writer) {
	for {
		m, err := c.Receive()
		if err != nil {
			fmt.Fprintf(w, "connection closed: %v\n", err)
			return
		}
		fmt.Fprintln(w, formatMessage(m))
	}
}

func forwardInput(c *transport.Client, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var m protocol.Message
		switch line := strings.TrimSpace(scanner.Text()); line {
		case "", protocol.TypeReady:
			m = protocol.New(protocol.TypeReady)
		case protocol.TypeQuit:
			m = protocol.New(protocol.TypeQuit)
		case "exit":
			return nil
		default:
			// anything else goes out as a bare message type
			m = protocol.New(line)
		}
		if err := c.Send(m); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// formatMessage prints a message on one line, fields sorted by key.
func formatMessage(m protocol.Message) string {
	var sb strings.Builder
	sb.WriteString(m.Type)
	for _, k := range util.SortedKeys(m.Fields) {
		fmt.Fprintf(&sb, " %s=%q", k, m.Fields[k])
	}
	return sb.String()
}
