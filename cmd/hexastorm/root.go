package main

import (
	"github.com/spf13/cobra"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/host"
)

var (
	cfgFile  string
	portFlag string
	virtual  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hexastorm",
	Short: "Rotating prism laser scanner control",
	Long: `Hexastorm drives the scanhead of a rotating prism laser scanner:
it spins up the prism, locks onto the photodiode and streams scanline
data for exposure. Pass --virtual to run against the in-process
simulated scanner instead of real hardware.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load(cfgFile)
		cobra.CheckErr(err)
		if portFlag != "" {
			cfg.Serial.Port = portFlag
		}
	},
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "hexastorm.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "serial port, overrides the configuration")
	rootCmd.PersistentFlags().BoolVar(&virtual, "virtual", false, "use the in-process virtual scanner")
}

// openDevice connects to the configured device.
func openDevice() (host.Device, error) {
	var (
		dev host.Device
		err error
	)
	if virtual {
		dev, err = host.NewVirtual(cfg)
	} else {
		dev, err = host.NewSerial(cfg)
	}
	if err != nil {
		return nil, err
	}
	if err := dev.Connect(); err != nil {
		return nil, err
	}
	return dev, nil
}
