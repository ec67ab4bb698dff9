package main

import (
	"supplierbot/cmd/supplierctl/commands"
	"supplierbot/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
