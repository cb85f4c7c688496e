package cmd

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"ridebook/config"
	"ridebook/db/pg"
	"ridebook/ledger"
	"ridebook/logger"
	"ridebook/mq/mq"
	"ridebook/repair"
	"ridebook/ride"
	"ridebook/web"
)

func serverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the ride booking API. Flags override the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("dev") {
				cfg.IsDev, _ = cmd.Flags().GetBool("dev")
			}
			if cmd.Flags().Changed("port") {
				cfg.AppPort, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("mq") {
				cfg.MqMode, _ = cmd.Flags().GetString("mq")
			}
			return serve(cfg)
		},
	}

	cmd.Flags().Bool("dev", false, "Run in development mode")
	cmd.Flags().Int("port", 8080, "Port to run the web server on")
	cmd.Flags().String("mq", string(mq.ModeGoChan), "Message queue mode (go_chan, rabbitmq, gcp_pub_sub)")

	return cmd
}

func serve(cfg config.Config) error {
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	store, gdb, err := openStore(cfg)
	if err != nil {
		log.Error("open store failed", logger.Error(err))
		return err
	}
	defer pg.CloseGORM(gdb)

	queue, err := openQueue(context.Background(), cfg, mq.Mode(cfg.MqMode))
	if err != nil {
		log.Error("open message queue failed", logger.String("mode", cfg.MqMode), logger.Error(err))
		return err
	}
	defer queue.Close()

	l := ledger.New(store, log)
	repairer := repair.New(store, log)
	rides := ride.NewService(store, l, queue, validator.New(), log)
	h := web.NewHandler(rides, l, repairer, queue, log)

	log.Info("starting server",
		logger.Int("port", cfg.AppPort),
		logger.String("db", cfg.DBDriver),
		logger.String("mq", cfg.MqMode),
	)
	return web.Serve(web.ServiceConfig{
		IsDev:     cfg.IsDev,
		Port:      strconv.Itoa(cfg.AppPort),
		MqMode:    mq.Mode(cfg.MqMode),
		RateLimit: cfg.RateLimit,
	}, h, store)
}
