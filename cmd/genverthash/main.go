// Program genverthash is a standalone devtool that synthesizes a Verthash
// dataset file, following the teacher's cmd/devtools convention of shipping
// small single-purpose binaries alongside the main miner.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/AGPFMiner/vertminer/verthash"
)

func main() {
	path := flag.String("out", "verthash.dat", "output dataset path")
	seed := flag.String("seed", "", "seed string mixed into the generated dataset")
	words := flag.Int("words", verthash.DefaultDatasetWords, "number of 4-byte words to generate")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if rc := verthash.GenerateDataFile(*path, []byte(*seed), *words, logger); rc != 0 {
		fmt.Fprintf(os.Stderr, "failed to generate dataset at %s\n", *path)
		os.Exit(1)
	}
	fmt.Println("dataset written to", *path)
}
