package main

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	infoTag  = color.New(color.FgBlue).SprintFunc()
	okTag    = color.New(color.FgGreen).SprintFunc()
	warnTag  = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorTag = color.New(color.FgRed).SprintFunc()
)

func init() {
	if os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

func info(msg string)    { fmt.Printf("%s %s\n", infoTag("[INFO]"), msg) }
func success(msg string) { fmt.Printf("%s %s\n", okTag("[OK]"), msg) }
func warn(msg string)    { fmt.Printf("%s %s\n", warnTag("[WARN]"), msg) }
func fail(msg string)    { fmt.Fprintf(os.Stderr, "%s %s\n", errorTag("[ERROR]"), msg) }

var sizeAbbrs = []string{"B", "K", "M", "G", "T", "P"}

// formatSize renders byte counts the way zfs list does: base 1024, one
// decimal, single-letter suffix.
func formatSize(bytes int64) string {
	return units.CustomSize("%.1f%s", float64(bytes), 1024.0, sizeAbbrs)
}
