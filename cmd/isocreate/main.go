package main

import (
	"fmt"
	"os"

	"github.com/bgrewell/iso-forge"
	"github.com/bgrewell/iso-forge/pkg/option"
)

func main() {

	source := "/tmp/ubuntu-iso"
	dest := "/tmp/created-ubuntu.iso"

	img, err := iso.Create("UBUNTU", option.WithRootDir(source))
	if err != nil {
		panic(err)
	}

	if err := img.Write(dest); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", dest, err)
		os.Exit(1)
	}

}
