package main

import (
	"standings-sync/cmd/standings-sync/commands"
	"standings-sync/internal/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
