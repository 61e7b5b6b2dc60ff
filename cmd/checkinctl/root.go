package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ogurasousui/checkin-ledger/internal/app"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
	"github.com/ogurasousui/checkin-ledger/internal/platform/logging"
)

const userAgent = "checkinctl"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "checkinctl",
		Short:         "Operate check-in snapshots and tenures from the command line",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")

	cmd.AddCommand(
		newBootstrapCmd(opts),
		newHistoryCmd(opts),
		newDiffCmd(opts),
		newEnergyCmd(opts),
		newMilestoneCmd(opts),
	)
	return cmd
}

func (o *rootOptions) effectiveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}

// open は設定を読み込み、結線済みの App を返します。ログは標準エラーへ出力します。
func (o *rootOptions) open(ctx context.Context) (*app.App, error) {
	if _, err := config.LoadEnvFiles(".env", ".env.local"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.effectiveConfigPath())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger.WithField("command", userAgent), nil)
}

// operatorContext はシステム操作者として振る舞うための要求文脈を返します。
func operatorContext(ctx context.Context, a *app.App) (snapshot.RequestContext, error) {
	actorID, err := a.Principals.SystemActorID(ctx)
	if err != nil {
		return snapshot.RequestContext{}, fmt.Errorf("resolve system actor: %w", err)
	}
	return snapshot.RequestContext{
		ActorID:   actorID,
		RequestID: uuid.NewString(),
		UserAgent: userAgent,
	}, nil
}
