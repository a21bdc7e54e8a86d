// MODUL: quantkit/main
// ZWECK: CLI-Einstiegspunkt fuer den Quantisierer
// INPUT: CLI-Argumente (quantize, env, --version)
// OUTPUT: Bitbreiten-Report, optionale JSON-Modelldatei
// NEBENEFFEKTE: Liest Manifest- und Kalibrierungsdateien
// ABHAENGIGKEITEN: cmd, cobra
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/7blacky7/quantkit/cmd"
)

func main() {
	if err := cmd.NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
