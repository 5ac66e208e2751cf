package main

import (
	"os"

	"github.com/LuckySoftware/Aletheia/internal/cli"
	"github.com/LuckySoftware/Aletheia/internal/logger"
)

func main() {
	if err := cli.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
