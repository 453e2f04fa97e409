package main

import (
	"fmt"
	"os"

	"github.com/whuanle/easytouch/internal/cli"
	"github.com/whuanle/easytouch/internal/daemon"
	"github.com/whuanle/easytouch/internal/launcher"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == launcher.DaemonArg {
		if err := daemon.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "easytouch daemon: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(cli.Run(os.Args[1:]))
}
