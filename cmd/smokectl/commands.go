package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/simulated"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var server string
	c := &client{http: &http.Client{Timeout: 10 * time.Second}}

	root := &cobra.Command{
		Use:          "smokectl",
		Short:        "Operate the smoke propagation service",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			c.base = server
		},
	}
	root.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "propagation service base URL")

	root.AddCommand(
		newSubmitCmd(c),
		newLocationCmd(c, "compute", "Aggregate a location's readings into its encrypted prediction", http.MethodPost, "/compute"),
		newLocationCmd(c, "disclose", "Request decryption of a location's prediction", http.MethodPost, "/disclosure"),
		newLocationCmd(c, "status", "Show a location's lifecycle state", http.MethodGet, ""),
		newLocationCmd(c, "alert", "Show a location's revealed alert level", http.MethodGet, "/alert"),
		newKeygenCmd(),
	)
	return root
}

func newSubmitCmd(c *client) *cobra.Command {
	var (
		contributor   string
		smoke         uint64
		windSpeed     uint64
		windDirection uint64
	)
	cmd := &cobra.Command{
		Use:   "submit LOCATION",
		Short: "Encrypt and submit one sensor reading",
		Long: `Encrypts the reading with the simulated scheme and submits it.
Only use against services running the simulated backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"contributor":              contributor,
				"encrypted_smoke_level":    []byte(simulated.Encrypt(smoke)),
				"encrypted_wind_speed":     []byte(simulated.Encrypt(windSpeed)),
				"encrypted_wind_direction": []byte(simulated.Encrypt(windDirection)),
			}
			return c.do(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, locationPath(args[0], "/readings"), body)
		},
	}
	cmd.Flags().StringVar(&contributor, "contributor", "", "submitting agency or station")
	cmd.Flags().Uint64Var(&smoke, "smoke", 0, "smoke level")
	cmd.Flags().Uint64Var(&windSpeed, "wind-speed", 0, "wind speed")
	cmd.Flags().Uint64Var(&windDirection, "wind-direction", 0, "wind direction in degrees")
	_ = cmd.MarkFlagRequired("contributor")
	return cmd
}

func newLocationCmd(c *client, use, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " LOCATION",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), cmd.OutOrStdout(), method, locationPath(args[0], suffix), nil)
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an oracle signing key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer := oracle.GenerateSigner()
			fmt.Fprintf(cmd.OutOrStdout(), "ORACLE_PUBLIC_KEY=%s\nORACLE_PRIVATE_KEY=%s\n",
				signer.PublicKeyHex(), signer.PrivateKeyHex())
			return nil
		},
	}
}

func locationPath(location, suffix string) string {
	return "/v1/locations/" + url.PathEscape(location) + suffix
}
