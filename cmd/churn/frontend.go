package main

import (
	"github.com/spf13/cobra"

	"github.com/ezoic/churn/frontend"
)

var frontendCmd = &cobra.Command{
	Use:   "frontend",
	Short: "Serve the HTML prediction form",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Frontend.Addr = addr
		}
		if u, _ := cmd.Flags().GetString("predict-url"); u != "" {
			cfg.Frontend.PredictURL = u
		}
		s, err := frontend.New(cfg.Frontend)
		if err != nil {
			return err
		}
		return s.Serve(cmd.Context())
	},
}

func init() {
	frontendCmd.Flags().String("addr", "", "Listen address (overrides frontend.addr)")
	frontendCmd.Flags().String("predict-url", "", "Prediction API endpoint (overrides frontend.predict_url)")
}
