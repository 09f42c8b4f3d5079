package main

import (
	"fmt"
	"github.com/bgrewell/iso-forge"
	"github.com/bgrewell/iso-forge/pkg/logging"
	"github.com/bgrewell/iso-forge/pkg/option"
	"os"
)

func main() {

	log := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_TRACE, true))

	img, err := iso.Create("UBUNTU",
		option.WithRootDir("/tmp/ubuntu"),
		option.WithCreateLogger(log),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create ISO: %w", err))
	}

	err = img.Write("/tmp/validation.iso")
	if err != nil {
		panic(fmt.Errorf("failed to save ISO: %w", err))
	}

}
