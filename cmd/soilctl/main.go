// Command soilctl inspects and exports Tilth world state offline.
//
//	soilctl inspect [-areas] <snapshot>
//	soilctl export -db data/tilth.db -out world.snap
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tilth/internal/engine"
	"github.com/talgya/tilth/internal/persistence"
	"github.com/talgya/tilth/internal/snapshot"
	"github.com/talgya/tilth/internal/soil"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = inspect(os.Args[2:])
	case "export":
		err = export(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "soilctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  soilctl inspect [-areas] <snapshot>")
	fmt.Fprintln(os.Stderr, "  soilctl export -db <path> -out <snapshot>")
}

func inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	areas := fs.Bool("areas", false, "decode the body and print per-area soil counts")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("inspect needs exactly one snapshot path")
	}
	path := fs.Arg(0)

	if !*areas {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		h, err := snapshot.ReadHeader(f)
		if err != nil {
			return err
		}
		printHeader(h)
		return nil
	}

	snap, err := snapshot.ReadFile(path)
	if err != nil {
		return err
	}
	printHeader(snap.Header)
	fmt.Println()
	printAreas(snap.World)
	return nil
}

func printHeader(h snapshot.Header) {
	fmt.Printf("version:   %d\n", h.Version)
	fmt.Printf("tick:      %s\n", humanize.Comma(int64(h.Tick)))
	fmt.Printf("written:   %s (%s)\n", h.WrittenAt.Format("2006-01-02 15:04:05"), humanize.Time(h.WrittenAt))
	fmt.Printf("areas:     %d\n", h.Areas)
	fmt.Printf("tracked:   %s\n", humanize.Comma(int64(h.Tracked)))
	fmt.Printf("depleted:  %s\n", humanize.Comma(int64(h.Depleted)))
	fmt.Printf("catalog:   %s\n", h.CatalogDigest)
}

func printAreas(ws engine.WorldState) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTOCK\tPENDING\tRICH\tWEATHERED\tDEPLETED\tORDERS\tNEXT WAKE")
	for _, a := range ws.Areas {
		var rich, weathered int
		for _, r := range a.Soil.Records {
			switch r.State {
			case soil.Rich:
				rich++
			case soil.Weathered:
				weathered++
			}
		}
		wake := "never"
		if a.Soil.NextWakeTick != soil.NeverTick {
			wake = humanize.Comma(int64(a.Soil.NextWakeTick))
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			a.ID, a.Name, a.Stock, a.Forbidden, len(a.Soil.Pending), rich, weathered,
			len(a.Soil.Depleted), len(a.Orders), wake)
	}
	tw.Flush()
}

func export(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "data/tilth.db", "SQLite database path")
	out := fs.String("out", "", "snapshot file to write")
	fs.Parse(args)
	if *out == "" {
		return errors.New("export needs -out")
	}
	if _, err := os.Stat(*dbPath); err != nil {
		return err
	}

	db, err := persistence.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ws, err := db.LoadWorldState()
	if err != nil {
		return err
	}
	digest, _ := db.GetMeta("catalog_digest")

	f := snapshot.File{Header: snapshot.NewHeader(ws, digest), World: ws}
	if err := snapshot.WriteFile(*out, f); err != nil {
		return err
	}
	fmt.Printf("exported tick %s (%d areas) to %s\n", humanize.Comma(int64(ws.Tick)), len(ws.Areas), *out)
	return nil
}
