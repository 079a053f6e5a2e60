package main

import (
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/proxy"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
)

func main() {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		log.Fatal().Err(err).Msg("error creating config manager")
	}
	config := configManager.GetConfig()
	common.ConfigureLogging(config.DebugMode, config.PrettyLogs)

	log.Info().Interface("proxy", config.Proxy.Redact()).Msg("starting llm proxy")

	server, err := proxy.NewServer(config.Proxy)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating proxy server")
	}

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("proxy server failed")
	}
}
