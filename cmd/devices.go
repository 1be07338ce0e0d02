package cmd

import (
	"fmt"

	"github.com/jsphweid/smartpiano/midi/rtmidi"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Lists midi inputs",
	Long:  `Lists the midi inputs the driver can see. Excluded ones are never picked automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := rtmidi.ListDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no midi inputs found")
			return nil
		}
		for _, d := range devices {
			note := ""
			if d.Excluded {
				note = " (excluded)"
			}
			fmt.Printf("%d: %s%s\n", d.Number, d.Name, note)
		}
		return nil
	},
}
