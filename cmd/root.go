package cmd

import (
	"github.com/spf13/cobra"
)

// directory searched for smartpiano.yaml and .env before . and config/
var configPath string

var rootCmd = &cobra.Command{
	Use:   "smartpiano",
	Short: "Ear training with a MIDI keyboard",
	Long: `smartpiano asks for notes and chords over a local socket and judges
what is played back on a MIDI keyboard.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "directory containing smartpiano.yaml")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
