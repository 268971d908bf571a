// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/keeper/internal/errs2"
	"storj.io/keeper/pkg/cfgstruct"
)

var mon = monkit.Package()

// EnvPrefix is the prefix of environment variables overriding flags, e.g.
// LIFECYCLE_EVICTION_TRASH_PATH sets --eviction.trash-path.
const EnvPrefix = "LIFECYCLE"

// ConfigFile is the name of the configuration file inside the config dir.
const ConfigFile = "config.yaml"

var (
	contextMtx sync.Mutex
	contexts   = map[*cobra.Command]context.Context{}
)

// Bind sets flags on a command that match the configuration struct
// 'config'. It ensures that the config has all of the values loaded into it
// when the command runs.
func Bind(cmd *cobra.Command, config interface{}, opts ...cfgstruct.BindOpt) {
	cfgstruct.Bind(cmd.Flags(), config, opts...)
}

// Exec runs a cobra command. If running the command returns an error, the
// process exits with a non-zero status.
func Exec(cmd *cobra.Command) {
	if err := ExecWithContext(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// ExecWithContext wires process wide configuration into cmd and its
// subcommands and executes it. Every command loads, in increasing priority,
// the flag defaults, the config file from --config-dir, LIFECYCLE_*
// environment variables and explicitly passed flags.
func ExecWithContext(ctx context.Context, cmd *cobra.Command) error {
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cleanup(ctx, cmd)
	return cmd.ExecuteContext(ctx)
}

// Ctx returns the context of a running command.
func Ctx(cmd *cobra.Command) context.Context {
	contextMtx.Lock()
	defer contextMtx.Unlock()

	if ctx, ok := contexts[cmd]; ok {
		return ctx
	}
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Viper returns a viper instance holding the configuration of cmd.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	if f := cmd.Flags().Lookup("config-dir"); f != nil && f.Value.String() != "" {
		path := filepath.Join(os.ExpandEnv(f.Value.String()), ConfigFile)
		if _, err := os.Stat(path); err == nil {
			vip.SetConfigFile(path)
			if err := vip.ReadInConfig(); err != nil {
				return nil, err
			}
		}
	}
	return vip, nil
}

func cleanup(ctx context.Context, cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		cleanup(ctx, sub)
	}

	internalRun := cmd.Run
	internalRunE := cmd.RunE
	if internalRun == nil && internalRunE == nil {
		return
	}

	cmd.Run = nil
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		ctx := ctx
		defer mon.Task()(&ctx)(&err)

		if err := load(cmd); err != nil {
			return err
		}

		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		defer zap.ReplaceGlobals(logger)()
		defer zap.RedirectStdLog(logger)()

		contextMtx.Lock()
		contexts[cmd] = ctx
		contextMtx.Unlock()
		defer func() {
			contextMtx.Lock()
			delete(contexts, cmd)
			contextMtx.Unlock()
		}()

		if internalRunE != nil {
			err = internalRunE(cmd, args)
		} else {
			internalRun(cmd, args)
		}
		if err != nil && !errs2.IsCanceled(err) {
			logger.Error("command failed", zap.String("Command", cmd.CommandPath()), zap.Error(err))
		}
		return err
	}
}

// load copies values from the config file and environment into every flag
// that was not set on the command line.
func load(cmd *cobra.Command) error {
	vip, err := Viper(cmd)
	if err != nil {
		return Error.Wrap(err)
	}

	var group errs.Group
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !vip.IsSet(f.Name) {
			return
		}
		value := vip.GetString(f.Name)
		if value == f.Value.String() {
			return
		}
		group.Add(errs.Wrap(f.Value.Set(value)))
	})
	return Error.Wrap(group.Err())
}
