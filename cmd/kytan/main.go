// Command kytan is a point-to-point UDP VPN: a server subcommand that
// multiplexes registered clients over one socket, and a client subcommand
// that tunnels its host's default route through a server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/changlan/kytan/pkg/config"
	"github.com/changlan/kytan/pkg/logging"
	"github.com/changlan/kytan/pkg/procutil"
	"github.com/changlan/kytan/pkg/vpn"
)

var (
	configPath string
	logLevel   string
	logPretty  bool
)

func main() {
	root := &cobra.Command{
		Use:           "kytan",
		Short:         "A simple point-to-point VPN",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML defaults file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "write human-readable logs instead of JSON")

	root.AddCommand(newServerCmd(), newClientCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kytan:", err)
		os.Exit(1)
	}
}

func loadConfigFile() (*config.File, error) {
	if configPath == "" {
		return nil, nil
	}
	return config.Load(configPath)
}

func newServerCmd() *cobra.Command {
	var listen string
	var port uint16
	var key string
	var dns string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the kytan server",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadConfigFile()
			if err != nil {
				return err
			}
			defaults := file.ServerDefaults()
			if !cmd.Flags().Changed("listen") && defaults.Listen != "" {
				listen = defaults.Listen
			}
			if !cmd.Flags().Changed("port") && defaults.Port != 0 {
				port = defaults.Port
			}
			if !cmd.Flags().Changed("key") && defaults.Key != "" {
				key = defaults.Key
			}
			if !cmd.Flags().Changed("dns") && defaults.DNS != "" {
				dns = defaults.DNS
			}
			if key == "" {
				return fmt.Errorf("--key is required")
			}

			if err := procutil.RequireRoot(); err != nil {
				return err
			}

			log := logging.New(logLevel, logPretty)
			return vpn.RunServer(vpn.ServerConfig{
				Listen: listen,
				Port:   port,
				Key:    key,
				DNS:    dns,
			}, log)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "0.0.0.0", "address to listen on")
	cmd.Flags().Uint16VarP(&port, "port", "p", 9527, "UDP port to listen on")
	cmd.Flags().StringVarP(&key, "key", "k", "", "shared secret (required)")
	cmd.Flags().StringVarP(&dns, "dns", "d", "8.8.8.8", "DNS address advertised to clients")

	return cmd
}

func newClientCmd() *cobra.Command {
	var server string
	var port uint16
	var key string
	var noDefaultRoute bool

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the kytan client",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadConfigFile()
			if err != nil {
				return err
			}
			defaults := file.ClientDefaults()
			if !cmd.Flags().Changed("server") && defaults.Server != "" {
				server = defaults.Server
			}
			if !cmd.Flags().Changed("port") && defaults.Port != 0 {
				port = defaults.Port
			}
			if !cmd.Flags().Changed("key") && defaults.Key != "" {
				key = defaults.Key
			}
			if !cmd.Flags().Changed("no-default-route") && defaults.NoDefaultRoute {
				noDefaultRoute = defaults.NoDefaultRoute
			}
			if server == "" {
				return fmt.Errorf("--server is required")
			}
			if port == 0 {
				return fmt.Errorf("--port is required")
			}
			if key == "" {
				return fmt.Errorf("--key is required")
			}

			if err := procutil.RequireRoot(); err != nil {
				return err
			}

			log := logging.New(logLevel, logPretty)
			return vpn.RunClient(vpn.ClientConfig{
				ServerHost:     server,
				ServerPort:     port,
				Key:            key,
				NoDefaultRoute: noDefaultRoute,
			}, log)
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "server host or IP (required)")
	cmd.Flags().Uint16VarP(&port, "port", "p", 0, "server UDP port (required)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "shared secret (required)")
	cmd.Flags().BoolVarP(&noDefaultRoute, "no-default-route", "n", false, "do not steal the host default route")

	return cmd
}
