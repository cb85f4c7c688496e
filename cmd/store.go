package cmd

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"ridebook/config"
	"ridebook/db/pg"
	"ridebook/mq/gcppubsub"
	"ridebook/mq/goch"
	"ridebook/mq/mq"
	"ridebook/mq/rabbit"
)

// openStore connects the gorm store the commands share. The caller closes
// the returned db.
func openStore(cfg config.Config) (*pg.GORMRideDBWrapper, *gorm.DB, error) {
	gdb, err := pg.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	return pg.NewGORMRideDBWrapper(gdb), gdb, nil
}

type closableQueue interface {
	mq.RideMessageQueueWrapper
	Close()
}

const goChanBufferSize = 64

func openQueue(ctx context.Context, cfg config.Config, mode mq.Mode) (closableQueue, error) {
	switch mode {
	case mq.ModeGoChan:
		return goch.NewGoChanRideMessageQueueWrapper(goChanBufferSize), nil
	case mq.ModeRabbitMQ:
		conn, err := rabbit.NewRabbitConnection(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		wrapper, err := rabbit.NewRabbitRideMessageQueueWrapper(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return wrapper, nil
	case mq.ModeGCPPubSub:
		wrapper, err := gcppubsub.NewGCPRideMessageQueueWrapper(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		return wrapper, nil
	}
	return nil, fmt.Errorf("unknown mq mode %q", mode)
}
