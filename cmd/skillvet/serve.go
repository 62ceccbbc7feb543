package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"skillvet/internal/config"
	"skillvet/internal/web"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP scan API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		st, err := buildStack(cfg, buildOptions{withStore: true})
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		st.watchRules(ctx)

		server := web.NewServer(st.pipeline, cfg.ServerPort,
			web.WithStore(st.store),
			web.WithLogger(st.logger),
			web.WithMaxUpload(cfg.MaxUpload),
		)
		return server.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
