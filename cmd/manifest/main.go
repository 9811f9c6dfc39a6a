package main

import (
	"fmt"
	"os"

	"github.com/mwantia/manifest/cmd/manifest/cli"
	"github.com/mwantia/manifest/cmd/manifest/cli/client"
	"github.com/mwantia/manifest/cmd/manifest/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	info := cli.VersionInfo{
		Version: version,
		Commit:  commit,
	}
	root := cli.NewRootCommand(info)

	root.AddCommand(cli.NewVersionCommand(info))

	root.AddCommand(server.NewAgentCommand())
	root.AddCommand(server.NewConfigCommand())
	root.AddCommand(server.NewMigrateCommand())
	root.AddCommand(server.NewSeedCommand())

	root.AddCommand(client.NewTagsCommand())
	root.AddCommand(client.NewRulesCommand())
	root.AddCommand(client.NewDatasetCommand())
	root.AddCommand(client.NewSampleCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
