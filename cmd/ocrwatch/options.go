package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// options are the parsed command-line flags.
type options struct {
	configPath  string
	file        string
	image       string
	taskID      string
	history     string
	journalPath string
	quiet       bool
}

var errUsage = errors.New("exactly one of --file, --image, --task or --history is required")

// parseOptions parses args. It returns pflag.ErrHelp when help was requested.
func parseOptions(args []string, stderr io.Writer) (*options, error) {
	var o options

	fs := pflag.NewFlagSet("ocrwatch", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "", "config file (default: ocrwatch.yaml in . or ~/.config/ocrwatch)")
	fs.StringVarP(&o.file, "file", "f", "", "PDF to submit and watch")
	fs.StringVarP(&o.image, "image", "i", "", "image to recognise synchronously")
	fs.StringVarP(&o.taskID, "task", "t", "", "existing task id to watch")
	fs.StringVar(&o.history, "history", "", "print the journaled observations of a task id")
	fs.StringVarP(&o.journalPath, "journal", "j", "", "sqlite journal path (overrides journal.path)")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "only print the final outcome")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ocrwatch [--config file] (--file doc.pdf | --image scan.png | --task ID | --history ID) [--journal path] [--quiet]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	o.file = strings.TrimSpace(o.file)
	o.image = strings.TrimSpace(o.image)
	o.taskID = strings.TrimSpace(o.taskID)
	o.history = strings.TrimSpace(o.history)

	set := 0
	for _, v := range []string{o.file, o.image, o.taskID, o.history} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		fs.Usage()
		return nil, errUsage
	}
	return &o, nil
}
