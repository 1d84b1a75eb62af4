package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridscan/pyratiff"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(_ context.Context) error {
	crossCheck := flag.Bool("check", false, "re-parse with the google/tiff parser and compare the IFD structure")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] file.tif\nOptions:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		return fmt.Errorf("")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	reader, err := pyratiff.NewReader(f, pyratiff.WithCaching(true))
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	ifds, err := reader.ReadIFDs()
	if err != nil {
		return err
	}

	order := "little-endian"
	if !reader.LittleEndian() {
		order = "big-endian"
	}
	kind := "TIFF"
	if reader.BigTiff() {
		kind = "BigTIFF"
	}
	fmt.Printf("%s: %s %s, %d IFDs, %d bytes\n", args[0], kind, order, len(ifds), reader.FileLength())

	for i, ifd := range ifds {
		w, werr := ifd.ImageDimX()
		h, herr := ifd.ImageDimY()
		if werr != nil || herr != nil {
			fmt.Printf("  IFD %d: no image dimensions\n", i)
			continue
		}
		layout := "strips"
		if ifd.IsTiled() {
			layout = "tiles"
		}
		tsx, _ := ifd.TileSizeX()
		tsy, _ := ifd.TileSizeY()
		fmt.Printf("  IFD %d: %dx%d, %d channels, compression %d, %s %dx%d\n",
			i, w, h, ifd.SamplesPerPixel(), ifd.Compression(), layout, tsx, tsy)
	}

	if *crossCheck {
		if err := crossCheckGoogle(f, ifds); err != nil {
			return fmt.Errorf("cross-check: %w", err)
		}
		fmt.Println("cross-check: IFD structure agrees with google/tiff")
	}
	return nil
}

// crossCheckGoogle re-parses the file with the independent google/tiff
// parser and compares the directory structure.
func crossCheckGoogle(f tiff.ReadAtReadSeeker, ifds []*pyratiff.IFD) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	tif, err := tiff.Parse(f, nil, nil)
	if err != nil {
		return err
	}
	gifds := tif.IFDs()
	if len(gifds) != len(ifds) {
		return fmt.Errorf("IFD count mismatch: %d here, %d in google/tiff", len(ifds), len(gifds))
	}
	for i, gifd := range gifds {
		ours := len(ifds[i].Tags())
		theirs := len(gifd.Fields())
		if ours != theirs {
			return fmt.Errorf("IFD %d entry count mismatch: %d here, %d in google/tiff", i, ours, theirs)
		}
	}
	return nil
}
