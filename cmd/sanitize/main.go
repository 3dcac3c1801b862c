package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd(defaultDeps()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
