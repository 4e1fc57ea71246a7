// Command mailsend sends one message described by a YAML file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alexisbouchez/mailer.go/config"
	"github.com/alexisbouchez/mailer.go/internal/credential"
	"github.com/alexisbouchez/mailer.go/smtpclient"
)

var errMissingKeyringKey = errors.New("smtp.auth.keyring_key is not set")

func main() {
	// Log with filename and line number.
	log.Logger = log.With().Caller().Logger()

	configPath := flag.String(
		"config",
		"./mailer.yaml",
		"path to a YAML file with the SMTP configuration",
	)
	messagePath := flag.String(
		"message",
		"",
		"path to a YAML file describing the message to send",
	)
	level := flag.String(
		"level",
		"",
		`log level: "trace", "debug", "info", "warn" or "error" (overrides logging.level)`,
	)
	storePassword := flag.Bool(
		"store-password",
		false,
		"read a password from stdin and store it under smtp.auth.keyring_key",
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config-path", *configPath).Msg("We can't load the configuration")
	}
	setupLogger(cfg.Logging, *level)

	if *storePassword {
		if err := savePassword(cfg); err != nil {
			log.Fatal().Err(err).Msg("We can't store the password")
		}
		log.Info().Str("key", cfg.SMTP.Auth.KeyringKey).Msg("password stored")
		return
	}

	if *messagePath == "" {
		log.Fatal().Msg("-message is required")
	}

	if cfg.SMTP.Auth.KeyringKey != "" && cfg.SMTP.Auth.Password == "" {
		store, err := credential.Open("")
		if err != nil {
			log.Fatal().Err(err).Msg("We can't open the keyring")
		}
		if err := cfg.ResolvePassword(store.Get); err != nil {
			log.Fatal().Err(err).Msg("We can't read the SMTP password")
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	f, err := os.Open(*messagePath)
	if err != nil {
		log.Fatal().Err(err).Str("message-path", *messagePath).Msg("We can't open the message file")
	}
	req, err := parseMessage(f, filepath.Dir(*messagePath))
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("message-path", *messagePath).Msg("We can't parse the message file")
	}

	// Cancel the send on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := append(cfg.ClientOptions(), smtpclient.WithLogger(log.Logger))
	c := smtpclient.New(ctx, cfg.ClientConfig(), opts...)
	defer c.Close()

	if err := c.Send(ctx, req); err != nil {
		c.Close()
		log.Fatal().Err(err).Msg("sending failed")
	}
	log.Info().
		Int("recipients", len(req.Recipients())).
		Msg("message sent")
}

func setupLogger(lc config.LoggingConfig, override string) {
	if lc.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	name := lc.Level
	if override != "" {
		name = override
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(lvl)
}

func savePassword(cfg *config.Config) error {
	key := cfg.SMTP.Auth.KeyringKey
	if key == "" {
		return errMissingKeyringKey
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	store, err := credential.Open("")
	if err != nil {
		return err
	}
	return store.Set(key, strings.TrimRight(line, "\r\n"))
}
