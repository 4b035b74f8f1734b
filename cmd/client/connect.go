package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ikedadada/go-onehop/internal/handler"
)

// NewConnectCmd creates the connect command.
func NewConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Fetch a URL through one relay and print the response",
		Long: `Connect builds a channel and a one-hop circuit to the relay, opens a stream
to the target and prints the raw HTTP response.

Examples:
  onehop-client connect --relay-ip 127.0.0.1 --relay-port 9001 \
    --fingerprint AABBCCDDEEFF00112233445566778899AABBCCDD \
    --url http://example.com/ --port 80`,
		Args: cobra.NoArgs,
		RunE: runConnectCmd,
	}

	cmd.Flags().String("relay-ip", "", "Relay IP address (IPv4 or IPv6 literal)")
	cmd.Flags().Uint16("relay-port", 9001, "Relay OR port")
	cmd.Flags().String("fingerprint", "", "Relay identity fingerprint (40 hex characters)")
	cmd.Flags().String("url", "", "Target URL, e.g. http://example.com/path")
	cmd.Flags().Uint16("port", 80, "Target port")
	_ = cmd.MarkFlagRequired("relay-ip")
	_ = cmd.MarkFlagRequired("fingerprint")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runConnectCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	relayIP, _ := cmd.Flags().GetString("relay-ip")
	relayPort, _ := cmd.Flags().GetUint16("relay-port")
	fingerprint, _ := cmd.Flags().GetString("fingerprint")
	url, _ := cmd.Flags().GetString("url")
	port, _ := cmd.Flags().GetUint16("port")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := handler.NewTorClient(cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Init(); err != nil {
		return err
	}

	resp, err := client.ConnectContext(ctx, relayIP, relayPort, fingerprint, url, port)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), resp)
	return err
}
