package main

import (
	"fmt"
	"os"

	"github.com/MrSnakeDoc/powerdeck/internal/app"
	"github.com/MrSnakeDoc/powerdeck/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("powerdeck %s (commit %s, built %s, %s)\n",
			version.Version, version.Commit, version.BuildDate, version.GoVersion)
		return
	}

	if err := app.New().Run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ powerdeck stopped: %v\n", err)
		os.Exit(1)
	}
}
