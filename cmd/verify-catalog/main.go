package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/globalbedo/internal/catalog"
	"github.com/chrissnell/globalbedo/internal/log"
)

func main() {
	var (
		dbPath = flag.String("catalog", "", "Path to the catalog database (required)")
		tile   = flag.String("tile", "", "Tile whose files to verify (required)")
		kind   = flag.String("kind", "", "Only verify files of this kind: daily, full, prior or albedo")
		debug  = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *dbPath == "" || *tile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -catalog <catalog.db> -tile <tile>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	kinds := []string{catalog.KindDaily, catalog.KindFull, catalog.KindPrior, catalog.KindProduct}
	if *kind != "" {
		kinds = []string{*kind}
	}

	cat, err := catalog.Open(*dbPath, log.GetSugaredLogger())
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer cat.Close()

	ctx := context.Background()
	checked, bad := 0, 0
	for _, k := range kinds {
		files, err := cat.Files(ctx, *tile, k)
		if err != nil {
			log.Fatalf("Failed to list %s files: %v", k, err)
		}
		for _, f := range files {
			checked++
			ok, err := cat.Verify(f)
			switch {
			case err != nil:
				bad++
				fmt.Printf("UNREADABLE %s: %v\n", f.Path, err)
			case !ok:
				bad++
				fmt.Printf("MISMATCH   %s\n", f.Path)
			default:
				log.Debugw("verified", "path", f.Path, "kind", f.Kind)
			}
		}
	}

	fmt.Printf("%d files checked, %d bad\n", checked, bad)
	if bad > 0 {
		log.Sync()
		os.Exit(1)
	}
}
