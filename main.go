package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
)

// Define command structs
type ManifestInfoCmd struct {
	GameId      string `arg:"positional,required" help:"Game id as listed by getGameBranches"`
	OutputPath  string `arg:"positional,required" help:"Path to output JSON file or - for stdout"`
	PreDownload bool   `arg:"--pre-download" help:"Describe the pre-download branch instead of the main one"`
}

type InstallCmd struct {
	GameId  string   `arg:"positional,required" help:"Game id as listed by getGameBranches"`
	Path    string   `arg:"positional,required" help:"Game install directory"`
	Fields  []string `arg:"-f,--field,separate" help:"Matching field to install (default: game)"`
	Threads int      `arg:"-t,--threads" help:"Amount of workers to be used"`
}

type PreDownloadCmd struct {
	GameId  string   `arg:"positional,required" help:"Game id as listed by getGameBranches"`
	Fields  []string `arg:"-f,--field,separate" help:"Matching field to fetch (default: game)"`
	From    string   `arg:"--from" help:"Installed version; fetches patch chunks instead of full chunks"`
	Threads int      `arg:"-t,--threads" help:"Amount of workers to be used"`
}

type UpdateCmd struct {
	GameId  string   `arg:"positional,required" help:"Game id as listed by getGameBranches"`
	Path    string   `arg:"positional,required" help:"Game install directory"`
	Fields  []string `arg:"-f,--field,separate" help:"Matching field to update (default: game)"`
	From    string   `arg:"--from" help:"Installed version (default: read from the .version file)"`
	Threads int      `arg:"-t,--threads" help:"Amount of workers to be used"`
}

type RepairCmd struct {
	GameId  string   `arg:"positional,required" help:"Game id as listed by getGameBranches"`
	Path    string   `arg:"positional,required" help:"Game install directory"`
	Fields  []string `arg:"-f,--field,separate" help:"Matching field to verify (default: game)"`
	Threads int      `arg:"-t,--threads" help:"Amount of workers to be used"`
}

// Root command struct
type Args struct {
	Config   string `arg:"--config" help:"Path to the configuration file"`
	Edition  string `arg:"--edition" help:"Game edition: global or china"`
	LogLevel string `arg:"--log-level" help:"Log level: debug, info, warning or error"`

	ManifestInfo *ManifestInfoCmd `arg:"subcommand:manifestinfo" help:"Fetch and output manifest information"`
	Install      *InstallCmd      `arg:"subcommand:install" help:"Install a game"`
	PreDownload  *PreDownloadCmd  `arg:"subcommand:predownload" help:"Fill the chunk cache for the next version"`
	Update       *UpdateCmd       `arg:"subcommand:update" help:"Update an installed game"`
	Repair       *RepairCmd       `arg:"subcommand:repair" help:"Verify and repair an installed game"`
}

func main() {
	var args Args
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	app, err := newApp(&args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	switch {
	case args.ManifestInfo != nil:
		err = app.ManifestInfoCommand(args.ManifestInfo)
	case args.Install != nil:
		err = app.InstallCommand(args.Install)
	case args.PreDownload != nil:
		err = app.PreDownloadCommand(args.PreDownload)
	case args.Update != nil:
		err = app.UpdateCommand(args.Update)
	case args.Repair != nil:
		err = app.RepairCommand(args.Repair)
	}

	if err != nil {
		app.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
