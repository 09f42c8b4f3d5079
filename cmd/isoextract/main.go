package main

import (
	"flag"
	"fmt"
	"github.com/bgrewell/iso-forge"
	"github.com/bgrewell/iso-forge/pkg/logging"
	"github.com/bgrewell/iso-forge/pkg/option"
	"github.com/go-logr/logr"
	"os"
)

func main() {
	// Logging level flags
	debug := flag.Bool("v", false, "Enable verbose (debug) logging")
	trace := flag.Bool("vv", false, "Enable trace logging")

	// Extraction options
	bootImages := flag.Bool("boot", false, "Extract boot images (El Torito)")
	rockRidge := flag.Bool("rockridge", true, "Enable Rock Ridge support")
	enhancedVol := flag.Bool("enhanced", true, "Use Enhanced Volume Descriptors")
	stripVer := flag.Bool("strip", true, "Strip version info from filenames")

	// Output directory
	outputDir := flag.String("o", "./extracted", "Output directory for extracted files")
	bootDir := flag.String("bootdir", "[BOOT]", "Output directory for boot images")

	// Parse flags
	flag.Parse()

	// Configure logging
	var log *logging.Logger
	if *trace {
		log = logging.NewLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_TRACE, true))
	} else if *debug {
		log = logging.NewLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_DEBUG, true))
	} else {
		log = logging.NewLogger(logr.Discard())
	}

	// Ensure we have an ISO path
	if flag.NArg() < 1 {
		fmt.Println("Usage: isoextract [options] <path-to-iso>")
		fmt.Println("  -v               Enable verbose (debug) logging")
		fmt.Println("  -vv              Enable trace logging")
		fmt.Println("  -boot            Extract boot images (El Torito)")
		fmt.Println("  -rockridge       Enable Rock Ridge support (default: true)")
		fmt.Println("  -enhanced        Use Enhanced Volume Descriptors (default: true)")
		fmt.Println("  -strip           Strip version info from filenames (default: true)")
		fmt.Println("  -o <directory>   Output directory (default './extracted')")
		fmt.Println("  -bootdir <dir>   Output directory for boot images (default '[BOOT]')")
		os.Exit(1)
	}

	// Grab the ISO path from arguments
	isoPath := flag.Arg(0)

	// Open the ISO image with the specified flags
	img, err := iso.Open(
		isoPath,
		option.WithElToritoEnabled(*bootImages),
		option.WithRockRidgeEnabled(*rockRidge),
		option.WithParseOnOpen(*enhancedVol),
		option.WithBootFileExtractLocation(*bootDir),
		option.WithPreferEnhancedVD(*enhancedVol),
		option.WithStripVersionInfo(*stripVer),
		option.WithLogger(log),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ISO: %v\n", err)
		os.Exit(1)
	}
	defer img.Close()

	// Extract the contents
	err = img.Extract(*outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to extract image: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Extraction completed successfully to '%s'.\n", *outputDir)
}
