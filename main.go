package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/nlopes/slack"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/config"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/log"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/metrics"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/provider"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "ecs-alarm-autoscaler"
	app.Usage = "scale ECS services from CloudWatch alarm notifications"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "config",
		},
		cli.StringFlag{
			Name:   "queue-url",
			EnvVar: "SQS_QUEUE_URL",
		},
		cli.StringFlag{
			Name:   "table",
			EnvVar: "DDB_TABLE",
		},
		cli.StringFlag{
			Name:   "cluster",
			EnvVar: "ECS_CLUSTER",
		},
		cli.StringFlag{
			Name:   "region",
			EnvVar: "AWS_REGION",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		err := config.Load(ctx.String("config"), config.Overrides{
			Region:        ctx.String("region"),
			QueueURL:      ctx.String("queue-url"),
			CooldownTable: ctx.String("table"),
			ECSCluster:    ctx.String("cluster"),
		})
		if err != nil {
			return err
		}

		return log.Init(config.Get().Debug)
	}
	app.Action = func(ctx *cli.Context) error {
		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := execute(sigCtx); err != nil {
			log.Get().Error("error occurred", zap.String("cause", fmt.Sprintf("%+v", err)))
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execute(ctx context.Context) error {
	cfg := config.Get()
	logger := log.Get()

	sess, err := session.NewSession(aws.NewConfig().WithRegion(cfg.AWS.Region))
	if err != nil {
		return errors.WithStack(err)
	}

	patterns, err := cfg.AlarmPatterns()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.NewRouter(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", zap.String("listen", cfg.Metrics.Listen))
	}

	var notifier Notifier
	if cfg.SlackEnabled() {
		notifier = newSlackNotifier(slack.New(cfg.Slack.APIToken),
			cfg.Slack.Channel, cfg.Slack.Username, cfg.Slack.IconURL, cfg.Slack.AttachmentColor)
	}

	source := provider.NewSQSSource(sqs.New(sess), cfg.AWS.QueueURL)
	clk := clock.NewClock()
	handler := NewAlarmHandler(AlarmHandlerConfig{
		Source:    source,
		Alarms:    provider.NewCloudWatchAlarms(cloudwatch.New(sess)),
		Capacity:  provider.NewECSServices(ecs.New(sess), cfg.AWS.ECSCluster),
		Cooldowns: provider.NewDynamoDBCooldowns(dynamodb.New(sess), cfg.AWS.CooldownTable),
		Notifier:  notifier,
		Patterns:  patterns,
		Clock:     clk,
		Metrics:   recorder,
		Logger:    logger,
	})

	b := newReceiveBackOff(time.Duration(cfg.MaxElapsedRetrySeconds()) * time.Second)
	poller := NewPoller(source, handler, time.Duration(cfg.AWS.WaitTimeSeconds)*time.Second, b, clk, logger)

	logger.Info("start polling",
		zap.String("queue_url", cfg.AWS.QueueURL),
		zap.String("ecs_cluster", cfg.AWS.ECSCluster),
		zap.String("cooldown_table", cfg.AWS.CooldownTable),
		zap.String("region", cfg.AWS.Region),
		zap.Int("alarm_patterns", len(patterns)))
	if err := poller.Run(ctx); err != nil {
		return err
	}
	logger.Info("stopped polling")
	return nil
}
