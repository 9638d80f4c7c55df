package main

import (
	"os"

	app "github.com/slimtoolkit/imagenorm/pkg/app/master"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "imagenorm" {
		//handle plugin style invocations
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
	}

	app.Run()
}
