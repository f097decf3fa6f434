package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/diskguard/diskguard/pkg/bitlocker"
	"github.com/diskguard/diskguard/pkg/policy"
	"github.com/diskguard/diskguard/pkg/remediate"
	"github.com/diskguard/diskguard/pkg/rmm"
)

var (
	// Flags set by goreleaser during build
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "diskguard"
	app.Usage = "Drives a volume to disk encryption compliance and escrows the recovery password"
	app.Commands = []*cli.Command{
		versionCommand,
		statusCommand,
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "volume",
			Usage:   "Drive letter of the volume to manage",
			Value:   systemDrive(),
			EnvVars: []string{"DISKGUARD_VOLUME"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Interval between checks while waiting for an in-flight decryption",
			Value:   remediate.DefaultPollInterval,
			EnvVars: []string{"DISKGUARD_POLL_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "max-wait",
			Usage:   "Maximum wall-clock time to wait for an in-flight decryption",
			Value:   remediate.DefaultMaxWait,
			EnvVars: []string{"DISKGUARD_MAX_WAIT"},
		},
		&cli.StringFlag{
			Name:    "rmm-field",
			Usage:   "Name of the RMM inventory field the recovery password is published to",
			Value:   "Custom9",
			EnvVars: []string{"DISKGUARD_RMM_FIELD"},
		},
		&cli.BoolFlag{
			Name:    "skip-backup",
			Usage:   "Skip recovery password replication (air-gapped bench setups)",
			EnvVars: []string{"DISKGUARD_SKIP_BACKUP"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			EnvVars: []string{"DISKGUARD_DEBUG"},
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Log to this file path in addition to stderr",
		},
	}
	app.Before = func(c *cli.Context) error {
		return setupLogging(c)
	}
	app.Action = func(c *cli.Context) error {
		mountPoint := strings.TrimSuffix(c.String("volume"), `\`)

		controller := &remediate.Controller{
			Platform:     remediate.BitLockerPlatform{},
			Preparer:     remediate.NewPreparer(),
			PollInterval: c.Duration("poll-interval"),
			MaxWait:      c.Duration("max-wait"),
		}

		if store, err := policy.NewSystemStore(); err != nil {
			log.Warn().Err(err).Msg("policy store unavailable")
		} else {
			controller.Policy = policy.NewWriter(store)
		}

		if c.Bool("skip-backup") {
			log.Warn().Msg("recovery password replication disabled by flag")
		} else {
			fanout := &remediate.BackupFanout{
				Platform:  controller.Platform,
				FieldName: c.String("rmm-field"),
			}
			if fields, err := rmm.NewFieldStore(); err != nil {
				log.Warn().Err(err).Msg("inventory field store unavailable")
			} else {
				fanout.Fields = fields
			}
			controller.Backup = fanout
		}

		log.Info().Str("volume", mountPoint).Msg("starting encryption compliance run")
		status, err := controller.Run(mountPoint)
		if err != nil {
			log.Error().Err(err).Msg("remediation failed")
			return cli.Exit(errors.Wrap(err, "remediation failed"), 1)
		}

		log.Info().Stringer("status", status).Msg("run finished")
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("run diskguard failed")
	}
}

func setupLogging(c *cli.Context) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano, NoColor: true})
	if logfile := c.String("log-file"); logfile != "" {
		f, err := os.OpenFile(logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return errors.Wrap(err, "open logfile")
		}
		log.Logger = log.Output(zerolog.MultiLevelWriter(
			zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano, NoColor: true},
			zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339Nano, NoColor: true},
		))
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Bool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return nil
}

func systemDrive() string {
	if drive := os.Getenv("SystemDrive"); drive != "" {
		return drive
	}
	return "C:"
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Get diskguard version",
	Action: func(c *cli.Context) error {
		fmt.Println("diskguard " + version)
		fmt.Println("commit - " + commit)
		fmt.Println("date - " + date)
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Report the encryption state of every encryptable volume",
	Action: func(c *cli.Context) error {
		statuses, err := bitlocker.ListVolumeStatuses()
		if err != nil {
			return cli.Exit(errors.Wrap(err, "query volume statuses"), 1)
		}

		for _, info := range statuses {
			recovery := 0
			for _, p := range info.Protectors {
				if p.Type == bitlocker.ProtectorTypeNumericalPassword {
					recovery++
				}
			}
			fmt.Printf("%s\tconversion=%d protection=%d percent=%.2f protectors=%d recovery_passwords=%d\n",
				info.DriveLetter, info.ConversionStatus, info.ProtectionStatus, info.EncryptPercent, len(info.Protectors), recovery)
		}
		return nil
	},
}
