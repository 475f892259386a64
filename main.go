package main

import (
	"github.com/rs/zerolog/log"

	"chat-client/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat-client")
	}
}
