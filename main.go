package main

import (
	"os"

	"github.com/tphakala/withu/cmd"
	"github.com/tphakala/withu/internal/buildinfo"
)

func main() {
	os.Exit(cmd.Execute(buildinfo.Current()))
}
