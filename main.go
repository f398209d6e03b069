package main

import (
	"github.com/tiagocoutinho/qredis/internal/cli"
)

func main() {
	cli.Execute()
}
