package main

import (
	"os"

	"credit-ledger-go/internal/cli"
	"credit-ledger-go/internal/common"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	code := cli.Execute()
	loggerCleanup()
	os.Exit(code)
}
